package worker

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/objectstore"
)

const defaultContentType = "application/octet-stream"

// artifact is one regular file of the output directory.
type artifact struct {
	path string // on disk
	rel  string // slash separated, relative to the output directory
	size int64
}

// runUpload publishes every regular file under the output directory.
// Uploads run concurrently; the first failure cancels the rest and nothing
// already uploaded is removed.
func (p *Pipeline) runUpload(ctx context.Context) error {
	p.emit(ctx, build.StageUpload, "Preparing to upload artifacts")

	root := filepath.Join(p.settings.WorkDir, p.settings.OutputDir)
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("distribution folder not found at %s", root)
	}

	files, err := collectArtifacts(root)
	if err != nil {
		return fmt.Errorf("failed to read distribution folder: %w", err)
	}

	var uploaded, bytes atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.UploadConcurrency)
	for _, a := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := p.uploadOne(gctx, a); err != nil {
				return err
			}
			uploaded.Add(1)
			bytes.Add(a.size)
			return nil
		})
	}
	err = g.Wait()
	p.recorder.AddUploaded(int(uploaded.Load()), bytes.Load())
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	p.emit(ctx, build.StageUpload, "Upload complete")
	return nil
}

func (p *Pipeline) uploadOne(ctx context.Context, a artifact) error {
	key := objectstore.Key(p.settings.Prefix, p.settings.ProjectID, a.rel)
	p.emit(ctx, build.StageUpload, fmt.Sprintf("Uploading %s to %s", a.rel, key))

	// #nosec G304 -- path comes from walking the build output directory
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	err = p.store.Put(ctx, key, f, objectstore.PutOptions{
		ContentType:  contentType(a.rel),
		CacheControl: p.settings.CacheControl,
		Metadata: map[string]string{
			objectstore.MetaTraceID:   p.settings.TraceID,
			objectstore.MetaProjectID: p.settings.ProjectID,
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %s", a.rel, describe(err))
	}
	p.emit(ctx, build.StageUpload, "Uploaded "+a.rel)
	return nil
}

// collectArtifacts walks root and returns its regular files. Directories
// are descended into; symlinks and other special files are skipped.
func collectArtifacts(root string) ([]artifact, error) {
	var out []artifact
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, artifact{path: path, rel: filepath.ToSlash(rel), size: info.Size()})
		return nil
	})
	return out, err
}

// contentType derives the MIME type from the file extension.
func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}
