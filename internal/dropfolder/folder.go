// Package dropfolder reads journal recordings and transcripts from a local
// directory kept in sync with the user's drive.
package dropfolder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// ProcessedDir is the subdirectory released files are moved into.
const ProcessedDir = "processed"

var (
	textExts  = map[string]bool{".txt": true, ".md": true}
	audioExts = map[string]bool{
		".mp3": true, ".m4a": true, ".wav": true, ".ogg": true, ".oga": true,
		".webm": true, ".flac": true, ".mp4": true, ".mpeg": true, ".mpga": true,
	}
	datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
)

// ErrNoMaterial is returned when a date has no usable files.
var ErrNoMaterial = errors.New("no material for date")

// Options configure a Folder.
type Options struct {
	Dir string
	// DeleteProcessed removes released files instead of moving them into
	// ProcessedDir.
	DeleteProcessed bool
	LanguageHints   []string
	// Transcriber converts audio. Without one, audio files are ignored.
	Transcriber engine.Transcriber
	// Location decides the calendar date of files dated by mtime.
	Location *time.Location
	Logger   *slog.Logger
}

// Folder implements consolidation.Source over a directory.
type Folder struct {
	dir         string
	deleteAfter bool
	hints       []string
	transcriber engine.Transcriber
	loc         *time.Location
	logger      *slog.Logger
}

// New creates the directory if needed and returns a Folder over it.
func New(opts Options) (*Folder, error) {
	if opts.Dir == "" {
		return nil, errors.New("drop folder path is empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating drop folder: %w", err)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Folder{
		dir:         opts.Dir,
		deleteAfter: opts.DeleteProcessed,
		hints:       opts.LanguageHints,
		transcriber: opts.Transcriber,
		loc:         opts.Location,
		logger:      opts.Logger,
	}, nil
}

// Dir returns the watched directory.
func (f *Folder) Dir() string { return f.dir }

type entry struct {
	path  string
	name  string
	audio bool
}

// scan groups the usable files of the folder by date.
func (f *Folder) scan() (map[time.Time][]entry, error) {
	des, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading drop folder: %w", err)
	}

	days := make(map[time.Time][]entry)
	skippedAudio := 0
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		audio := audioExts[ext]
		if !audio && !textExts[ext] {
			continue
		}
		if audio && f.transcriber == nil {
			skippedAudio++
			continue
		}

		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		date := f.fileDate(name, info.ModTime())
		days[date] = append(days[date], entry{path: filepath.Join(f.dir, name), name: name, audio: audio})
	}
	if skippedAudio > 0 {
		f.logger.Warn("audio files ignored, no transcriber configured", "files", skippedAudio)
	}
	for _, es := range days {
		sort.Slice(es, func(i, j int) bool { return es[i].name < es[j].name })
	}
	return days, nil
}

// fileDate reads a YYYY-MM-DD filename prefix, falling back to the
// modification date.
func (f *Folder) fileDate(name string, mtime time.Time) time.Time {
	if m := datePrefix.FindStringSubmatch(name); m != nil {
		if d, err := tiers.ParseDate(m[1]); err == nil {
			return d
		}
	}
	return tiers.Day(mtime.In(f.loc))
}

// Pending lists the dates with files waiting in the folder.
func (f *Folder) Pending(ctx context.Context) ([]time.Time, error) {
	days, err := f.scan()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(days))
	for d := range days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Transcript joins the date's text files and audio transcriptions in
// filename order.
func (f *Folder) Transcript(ctx context.Context, date time.Time) (storage.Transcript, error) {
	date = tiers.Day(date)
	days, err := f.scan()
	if err != nil {
		return storage.Transcript{}, err
	}
	entries := days[date]
	if len(entries) == 0 {
		return storage.Transcript{}, fmt.Errorf("%s: %w", tiers.DateKey(date), ErrNoMaterial)
	}

	t := storage.Transcript{Date: date}
	if len(f.hints) > 0 {
		t.Language = f.hints[0]
	}
	var parts []string
	for _, e := range entries {
		text, err := f.read(ctx, e)
		if err != nil {
			return storage.Transcript{}, err
		}
		t.Sources = append(t.Sources, e.name)
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	t.Text = strings.Join(parts, "\n\n")
	f.logger.Debug("transcript assembled", "date", tiers.DateKey(date), "files", len(entries), "words", tiers.WordCount(t.Text))
	return t, nil
}

func (f *Folder) read(ctx context.Context, e entry) (string, error) {
	if !e.audio {
		b, err := os.ReadFile(e.path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", e.name, err)
		}
		return string(b), nil
	}

	file, err := os.Open(e.path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", e.name, err)
	}
	defer file.Close()

	start := time.Now()
	text, err := f.transcriber.Transcribe(ctx, file, e.name, f.hints)
	if err != nil {
		return "", fmt.Errorf("transcribing %s: %w", e.name, err)
	}
	f.logger.Info("audio transcribed", "file", e.name, "duration", time.Since(start).Round(time.Millisecond))
	return text, nil
}

// MarkDeletable releases the date's files: they are moved into
// ProcessedDir/<date>, or removed when DeleteProcessed is set.
func (f *Folder) MarkDeletable(ctx context.Context, date time.Time) error {
	date = tiers.Day(date)
	days, err := f.scan()
	if err != nil {
		return err
	}
	entries := days[date]
	if len(entries) == 0 {
		return nil
	}

	dest := filepath.Join(f.dir, ProcessedDir, tiers.DateKey(date))
	if !f.deleteAfter {
		if err := os.MkdirAll(dest, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dest, err)
		}
	}

	var errs []error
	for _, e := range entries {
		if f.deleteAfter {
			if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if err := os.Rename(e.path, filepath.Join(dest, e.name)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("releasing %s: %w", tiers.DateKey(date), errors.Join(errs...))
	}
	f.logger.Info("source files released", "date", tiers.DateKey(date), "files", len(entries), "deleted", f.deleteAfter)
	return nil
}

// Add writes text as a new transcript file for date and returns its name.
func (f *Folder) Add(date time.Time, text string) (string, error) {
	name := fmt.Sprintf("%s journal-%s.txt", tiers.DateKey(date), uuid.New().String()[:8])
	tmp := filepath.Join(f.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(f.dir, name)); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return name, nil
}
