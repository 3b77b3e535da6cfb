// Package hash provides the CRC32-Castagnoli checksums recorded in backup
// manifests.
//
//	sum := hash.CRC32C(data)
//
//	h := hash.NewCRC32C()
//	io.Copy(h, r)
//	sum := h.Sum32()
package hash
