// Package config holds the nested settings consumed by the engine and renderer, together with the
// default value sets for each build profile.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/logging"
)

// Profile names one of the default setting sets
type Profile int

const (
	ProfileDebug Profile = iota
	ProfileRelease
	ProfileProfile
)

var profileNames = map[Profile]string{
	ProfileDebug:   "Debug",
	ProfileRelease: "Release",
	ProfileProfile: "Profile",
}

func (p Profile) String() string {
	name, ok := profileNames[p]
	if !ok {
		return "Unknown"
	}
	return name
}

// ParseProfile converts a profile name, case-sensitive, to a Profile
func ParseProfile(name string) (Profile, error) {
	for profile, profileName := range profileNames {
		if profileName == name {
			return profile, nil
		}
	}
	return ProfileRelease, errors.Newf("unknown build profile %q", name)
}

// Window holds the settings used to create the platform window
type Window struct {
	Title     string
	Width     int
	Height    int
	Resizable bool
}

// Descriptors holds the per-kind capacities of the descriptor registry
type Descriptors struct {
	RenderTarget   int
	DepthStencil   int
	ShaderResource int
	Sampler        int
}

// DefaultDescriptors returns the standard descriptor capacities
func DefaultDescriptors() Descriptors {
	return Descriptors{
		RenderTarget:   256,
		DepthStencil:   256,
		ShaderResource: 4096,
		Sampler:        2048,
	}
}

// Renderer holds the settings used to initialize the frame orchestrator
type Renderer struct {
	EnableDebugValidation bool
	VSync                 bool
	MSAASamples           int
	HDR                   bool
	VerboseLogging        bool
	LogFrameTime          bool

	// WaitTimeout bounds every blocking fence wait. Zero waits forever.
	WaitTimeout time.Duration
	Descriptors Descriptors
}

// Settings is the full set of configuration for one engine instance
type Settings struct {
	Profile  Profile
	Window   Window
	Renderer Renderer
}

// ForProfile returns the default settings for the requested profile
func ForProfile(profile Profile) Settings {
	settings := Settings{
		Profile: profile,
		Window: Window{
			Title:     "frameline",
			Width:     1280,
			Height:    720,
			Resizable: true,
		},
		Renderer: Renderer{
			VSync:       true,
			MSAASamples: 1,
			Descriptors: DefaultDescriptors(),
		},
	}

	switch profile {
	case ProfileDebug:
		settings.Renderer.EnableDebugValidation = true
		settings.Renderer.VerboseLogging = true
		settings.Renderer.LogFrameTime = true
	case ProfileProfile:
		settings.Renderer.VSync = false
		settings.Renderer.LogFrameTime = true
	}

	return settings
}

// Default returns the settings of the profile selected at build time with the debug or profile tags
func Default() Settings {
	return ForProfile(BuildProfile)
}

// LogLevel returns the minimum log level appropriate for these settings
func (s Settings) LogLevel() logging.Level {
	if s.Renderer.VerboseLogging {
		return logging.LevelTrace
	}
	return logging.LevelInfo
}

// Validate rejects settings that cannot be used to bring up a window and renderer
func (s Settings) Validate() error {
	if s.Window.Width <= 0 || s.Window.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", s.Window.Width, s.Window.Height)
	}

	err := frameutils.CheckPow2(s.Renderer.MSAASamples, "MSAASamples")
	if err != nil {
		return err
	}

	if s.Renderer.WaitTimeout < 0 {
		return errors.Newf("wait timeout must not be negative, got %s", s.Renderer.WaitTimeout)
	}

	return s.Renderer.Descriptors.Validate()
}

// Validate rejects zero or negative descriptor capacities
func (d Descriptors) Validate() error {
	if d.RenderTarget <= 0 || d.DepthStencil <= 0 || d.ShaderResource <= 0 || d.Sampler <= 0 {
		return errors.Newf("descriptor capacities must be positive: %+v", d)
	}
	return nil
}
