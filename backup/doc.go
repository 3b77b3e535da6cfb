// Package backup copies the files of a segment to a blobstore.Store and back.
//
// A backup is a directory of zstd-compressed files plus a manifest:
//
//	<id>/MANIFEST.json
//	<id>/<base>.zst
//	LATEST
//
// The manifest records the raw size and CRC32-C of every file, and Restore
// refuses to install a file whose checksum does not match. The LATEST pointer
// is written only after every file and the manifest are stored, so a crashed
// backup is never visible through Latest.
//
// Flush the segment before taking a backup; the engine files are read as
// they are on disk.
//
//	if err := seg.Flush(ctx); err != nil {
//	    return err
//	}
//	m, err := backup.New(store).Backup(ctx, seg.Files())
package backup
