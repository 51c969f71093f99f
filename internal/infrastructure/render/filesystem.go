package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/scanread/internal/core/domain"
)

// FileRenderer serves pre-rasterized page images from a sibling directory of
// the source file: <name>_pages/page-0001.png, 1-based. Rasterization itself
// lives outside this process; the GUI shell or a prepress step produces the
// images, this adapter only locates them.
type FileRenderer struct{}

func NewFileRenderer() *FileRenderer {
	return &FileRenderer{}
}

func (r *FileRenderer) RenderPage(ctx context.Context, doc *domain.Document, pageIndex int, scale float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageIndex < 0 || pageIndex >= doc.PageCount {
		return nil, domain.WrapError(domain.ErrInvalidInput, "render page",
			fmt.Errorf("page %d out of range (document has %d)", pageIndex, doc.PageCount))
	}

	path := pageImagePath(doc.Path, pageIndex)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "render page",
			fmt.Errorf("read page image %s: %w", path, err))
	}
	return data, nil
}

func pageImagePath(docPath string, pageIndex int) string {
	base := strings.TrimSuffix(docPath, filepath.Ext(docPath))
	return filepath.Join(base+"_pages", fmt.Sprintf("page-%04d.png", pageIndex+1))
}
