// Package security defines sandbox isolation profiles.
package security

// IsolationProfile describes the filesystem and seccomp settings of a run.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
}
