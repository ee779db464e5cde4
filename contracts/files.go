package contracts

import (
	"path/filepath"
	"strings"
)

// File is one in-memory upload.
type File struct {
	Name string
	Size int64
	MIME string
	Data []byte
}

func NewFile(name string, data []byte, mime string) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		MIME: mime,
		Data: data,
	}
}

// BaseName returns the file name without directory and extension.
func (f File) BaseName() string {
	return strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name))
}
