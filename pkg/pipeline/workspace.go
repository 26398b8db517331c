package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
)

// manifests maps each step to the JSON file it leaves in the run directory.
var manifests = map[models.StepName]string{
	models.StepFetchNews:       models.HeadlinesManifest,
	models.StepWriteScript:     models.ScriptManifest,
	models.StepSynthesizeVoice: models.NarrationManifest,
	models.StepBuildVideo:      models.VideoManifest,
	models.StepBuildThumbnail:  models.ThumbnailManifest,
	models.StepUpload:          models.UploadManifest,
	models.StepCrossPost:       models.CrossPostManifest,
}

// workspace owns the per-date output directories under root.
type workspace struct {
	root string
}

func (w workspace) dir(date string) string {
	return filepath.Join(w.root, date)
}

func (w workspace) ensure(date string) (string, error) {
	dir := w.dir(date)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	return dir, nil
}

func writeManifest(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// readManifest loads a prior step's output. A missing or corrupt manifest is permanent.
func readManifest(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- name is a fixed manifest name
	if err != nil {
		return adapters.Permanent(adapters.CodeMalformedInput, "missing "+name, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return adapters.Permanent(adapters.CodeMalformedInput, "corrupt "+name, err)
	}

	return nil
}

// artifactPath resolves a file reference returned by an adapter, rejecting anything outside dir.
func artifactPath(dir, ref string) (string, error) {
	if ref == "" || filepath.Base(ref) != ref || strings.HasPrefix(ref, ".") {
		return "", adapters.Permanent(adapters.CodeMalformedInput, fmt.Sprintf("invalid artifact reference %q", ref), nil)
	}

	return filepath.Join(dir, ref), nil
}

// stepFiles lists the artifacts a succeeded step promises, manifest included.
func stepFiles(dir string, step models.StepName) ([]string, error) {
	manifest := manifests[step]
	files := []string{manifest}

	var refs []string

	switch step {
	case models.StepSynthesizeVoice:
		var narration models.Narration
		if err := readManifest(dir, manifest, &narration); err != nil {
			return nil, err
		}

		refs = []string{narration.AudioRef, narration.SubtitleRef}
	case models.StepBuildVideo:
		var video models.Video
		if err := readManifest(dir, manifest, &video); err != nil {
			return nil, err
		}

		refs = []string{video.VideoRef}
	case models.StepBuildThumbnail:
		var thumb models.Thumbnail
		if err := readManifest(dir, manifest, &thumb); err != nil {
			return nil, err
		}

		refs = []string{thumb.ThumbnailRef}
	}

	for _, ref := range refs {
		if _, err := artifactPath(dir, ref); err != nil {
			return nil, err
		}

		files = append(files, ref)
	}

	return files, nil
}

// verify reports the first artifact of step missing from dir.
func verify(dir string, step models.StepName) error {
	files, err := stepFiles(dir, step)
	if err != nil {
		return err
	}

	for _, name := range files {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return adapters.Permanent(adapters.CodeMalformedInput, "missing artifact "+name, err)
		}

		if info.IsDir() {
			return adapters.Permanent(adapters.CodeMalformedInput, name+" is a directory", nil)
		}
	}

	return nil
}

// listBundle returns the visible regular files of a run directory, sorted by name.
func listBundle(date, dir string) (*models.OutputBundle, error) {
	bundle := &models.OutputBundle{Date: date, Dir: dir, Files: []models.BundleFile{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return bundle, nil
		}

		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		bundle.Files = append(bundle.Files, models.BundleFile{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}

	sort.Slice(bundle.Files, func(i, j int) bool {
		return bundle.Files[i].Name < bundle.Files[j].Name
	})

	return bundle, nil
}
