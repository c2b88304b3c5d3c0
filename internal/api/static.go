package api

import (
	"net/http"
	"os"
)

// filesOnly hides directories so the upload directory cannot be listed.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

// profileImages serves stored files under the public prefix from dir. Stored
// names keep the uploader's extension, so browsers are told not to sniff the
// content and never to run it as an active document.
func profileImages(prefix, dir string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(filesOnly{fs: http.Dir(dir)}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "sandbox")
		files.ServeHTTP(w, r)
	})
}
