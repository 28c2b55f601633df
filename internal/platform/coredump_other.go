//go:build !unix

package platform

func DisableCoreDumps() error { return nil }
