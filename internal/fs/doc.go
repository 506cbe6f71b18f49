// Package fs is the file layer under blobstore.LocalStore.
//
// Region files are replaced with [WriteFileAtomic]: the new content goes to
// a temporary sibling that is synced and renamed over the old file, so a
// crash mid-save loses at most that one region's latest changes.
//
// [FaultyFS] wraps a [FileSystem] and fails chosen files on open, read,
// write, sync, close or rename:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("0042.mesh", fs.Fault{FailAfterBytes: -1, FailOnRename: true})
//
// Calls take no context.Context; the remote stores in blobstore do.
package fs
