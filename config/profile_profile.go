//go:build profile && !debug

package config

// BuildProfile is the profile Default uses
const BuildProfile = ProfileProfile
