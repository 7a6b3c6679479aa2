//go:build debug

package config

// BuildProfile is the profile Default uses
const BuildProfile = ProfileDebug
