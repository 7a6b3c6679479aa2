//go:build !debug && !profile

package config

// BuildProfile is the profile Default uses
const BuildProfile = ProfileRelease
