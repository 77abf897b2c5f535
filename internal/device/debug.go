//go:build !debug

package device

// debugDiagnostics is compiled out of release builds; build with
// -tags debug to enable the hash-bucket collision diagnostic.
const debugDiagnostics = false
