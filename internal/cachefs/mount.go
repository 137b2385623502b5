//go:build linux

package cachefs

import (
	"context"
	"errors"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const entryAttrTimeout = time.Second

// Mount serves v read-only at dir. Call Unmount (or Wait after an external
// fusermount -u) on the returned server.
func Mount(dir string, v View, allowOther bool) (*fuse.Server, error) {
	to := entryAttrTimeout
	opts := &fs.Options{
		EntryTimeout: &to,
		AttrTimeout:  &to,
		MountOptions: fuse.MountOptions{
			AllowOther: allowOther,
			FsName:     "stbcache",
			Name:       "stbcache",
			Options:    []string{"ro"},
		},
	}
	server, err := fs.Mount(dir, &rootNode{view: v}, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("cachefs: mounted %s at %s", v.Blobs.Dir(), dir)
	return server, nil
}

type rootNode struct {
	fs.Inode
	view View
}

var _ fs.NodeGetattrer = (*rootNode)(nil)
var _ fs.NodeReaddirer = (*rootNode)(nil)
var _ fs.NodeLookuper = (*rootNode)(nil)

func (r *rootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFDIR | 0555
	return 0
}

func (r *rootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names := r.view.RootEntries()
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, n := range names {
		mode := uint32(fuse.S_IFDIR)
		if !IsKind(n) {
			mode = fuse.S_IFREG
		}
		entries = append(entries, fuse.DirEntry{Name: n, Mode: mode, Ino: inoFromString(n)})
	}
	return fs.NewListDirStream(entries), 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if IsKind(name) {
		ch := r.NewInode(ctx, &kindDirNode{view: r.view, kind: name}, fs.StableAttr{
			Mode: fuse.S_IFDIR,
			Ino:  inoFromString("dir:" + name),
		})
		out.Mode = fuse.S_IFDIR | 0555
		out.SetEntryTimeout(entryAttrTimeout)
		out.SetAttrTimeout(entryAttrTimeout)
		return ch, 0
	}
	return lookupFile(ctx, &r.Inode, r.view, "", name, out)
}

type kindDirNode struct {
	fs.Inode
	view View
	kind string
}

var _ fs.NodeReaddirer = (*kindDirNode)(nil)
var _ fs.NodeLookuper = (*kindDirNode)(nil)

func (n *kindDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.view.List(n.kind)
	if err != nil {
		return nil, errno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: fuse.S_IFREG, Ino: inoFromString(n.kind + "/" + name)})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *kindDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return lookupFile(ctx, &n.Inode, n.view, n.kind, name, out)
}

func lookupFile(ctx context.Context, parent *fs.Inode, v View, kind, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	data, err := v.ReadFile(kind, name)
	if err != nil {
		return nil, errno(err)
	}
	ch := parent.NewInode(ctx, &fileNode{view: v, kind: kind, name: name}, fs.StableAttr{
		Mode: fuse.S_IFREG,
		Ino:  inoFromString(kind + "/" + name),
	})
	out.Mode = fuse.S_IFREG | 0444
	out.Size = uint64(len(data))
	out.SetEntryTimeout(entryAttrTimeout)
	out.SetAttrTimeout(entryAttrTimeout)
	return ch, 0
}

// fileNode reads through to the cache on every open, so a replaced blob is
// visible without remounting.
type fileNode struct {
	fs.Inode
	view View
	kind string
	name string
}

var _ fs.NodeGetattrer = (*fileNode)(nil)
var _ fs.NodeOpener = (*fileNode)(nil)

func (n *fileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := fh.(*bytesHandle); ok {
		out.Size = uint64(len(h.data))
	} else {
		data, err := n.view.ReadFile(n.kind, n.name)
		if err != nil {
			return errno(err)
		}
		out.Size = uint64(len(data))
	}
	out.Mode = fuse.S_IFREG | 0444
	return 0
}

func (n *fileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	data, err := n.view.ReadFile(n.kind, n.name)
	if err != nil {
		return nil, 0, errno(err)
	}
	return &bytesHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

// bytesHandle is a snapshot of one blob taken at open.
type bytesHandle struct {
	data []byte
}

var _ fs.FileReader = (*bytesHandle)(nil)

func (h *bytesHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return fuse.ReadResultData(h.data[off:end]), 0
}

func errno(err error) syscall.Errno {
	if errors.Is(err, os.ErrNotExist) {
		return syscall.ENOENT
	}
	return syscall.EIO
}
