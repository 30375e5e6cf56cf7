// Package memory provides native heap backends: a growable Go slice and a
// wazero linear memory.
package memory
