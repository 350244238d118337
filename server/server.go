// Package server contains misc server utilities.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi"
)

// ReplyWithFile replies to the client request by serving the given file name
// from fldr.  Names that would escape fldr are refused.
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	if fn == "" || strings.ContainsAny(fn, `/\`) || fn == ".." {
		http.Error(w, fmt.Sprintf("invalid file name %q", fn), http.StatusBadRequest)
		return
	}
	filePath, err := filepath.Abs(filepath.Join(fldr, fn))
	if err != nil {
		fstr := fmt.Sprintf("unable to compute abspath of file %s %s %s", fldr, fn, err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", filePath)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fstr := fmt.Sprintf("error retrieving source file stats %s", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	// read some stuff to set the headers appropriately
	http.ServeContent(w, r, fn, stat.ModTime(), f)
}

// Files serves the file named by the {file} URL parameter from the folder
// returned by root, which is looked up on every request
func Files(root func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ReplyWithFile(w, r, chi.URLParam(r, "file"), root())
	}
}
