package importer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hubevents/btcimport/pkg/errlog"
)

// artifactWriter persists the run's JSON artifacts under one per-date
// directory. Individual write failures are recorded and swallowed: a
// report that cannot be written must not fail the import itself.
type artifactWriter struct {
	dir    string
	errors *errlog.Logger
}

func newArtifactWriter(outputDir, date string, errors *errlog.Logger) (*artifactWriter, error) {
	dir := filepath.Join(outputDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &artifactWriter{dir: dir, errors: errors}, nil
}

func (w *artifactWriter) writeJSON(name string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		w.reportFailure(name, err)
		return
	}
	w.writeRaw(name, data)
}

func (w *artifactWriter) writeRaw(name string, data []byte) {
	if data == nil {
		data = []byte("null")
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		w.reportFailure(name, err)
	}
}

func (w *artifactWriter) reportFailure(name string, err error) {
	w.errors.Error(errlog.CategorySystem, errlog.StageReporting,
		"failed to persist run artifact "+name,
		map[string]interface{}{"dir": w.dir}, err)
}
