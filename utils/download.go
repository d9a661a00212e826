package utils

import (
	"context"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"golang.org/x/xerrors"
)

// Download fetches a single file from any go-getter source (local path,
// http(s), s3, git...) and returns its content.
func Download(ctx context.Context, src string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "vuln-search")
	if err != nil {
		return nil, xerrors.Errorf("failed to create a temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// local sources are symlinked, so the destination must not exist yet
	dst := filepath.Join(tmpDir, "download")

	pwd, err := os.Getwd()
	if err != nil {
		return nil, xerrors.Errorf("unable to get the current dir: %w", err)
	}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Pwd:     pwd,
		Getters: getter.Getters,
		Mode:    getter.ClientModeFile,
	}
	if err = client.Get(); err != nil {
		return nil, xerrors.Errorf("failed to download %s: %w", src, err)
	}

	b, err := os.ReadFile(dst)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", dst, err)
	}
	return b, nil
}
