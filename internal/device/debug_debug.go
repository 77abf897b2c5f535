//go:build debug

package device

const debugDiagnostics = true
