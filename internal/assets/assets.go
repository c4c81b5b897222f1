package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"voxcam/internal/domain"
)

var (
	ErrModelMissing      = errors.New("acoustic model missing")
	ErrModelInvalid      = errors.New("acoustic model invalid")
	ErrDictionaryMissing = errors.New("dictionary missing")
	ErrGrammarMissing    = errors.New("grammar missing")
)

// Layout names the files inside a model directory.
type Layout struct {
	AcousticModel string
	Dictionary    string
	Grammar       string
}

// DefaultLayout matches the pocketsphinx en-us distribution.
func DefaultLayout() Layout {
	return Layout{
		AcousticModel: "en-us",
		Dictionary:    "cmudict-en-us.dict",
		Grammar:       "commands.gram",
	}
}

// Resolve joins the layout onto dir.
func (l Layout) Resolve(dir string) domain.ModelPaths {
	defaults := DefaultLayout()
	if l.AcousticModel == "" {
		l.AcousticModel = defaults.AcousticModel
	}
	if l.Dictionary == "" {
		l.Dictionary = defaults.Dictionary
	}
	if l.Grammar == "" {
		l.Grammar = defaults.Grammar
	}
	return domain.ModelPaths{
		AcousticModel: filepath.Join(dir, l.AcousticModel),
		Dictionary:    filepath.Join(dir, l.Dictionary),
		Grammar:       filepath.Join(dir, l.Grammar),
	}
}

// Validate checks that every model asset exists before the engine touches it.
// Failures come back as *domain.InitError naming the offending path.
func Validate(fs afero.Fs, paths domain.ModelPaths) error {
	info, err := fs.Stat(paths.AcousticModel)
	if err != nil {
		return initError(paths.AcousticModel, ErrModelMissing, err)
	}
	if !info.IsDir() {
		return initError(paths.AcousticModel, ErrModelInvalid, errors.New("not a directory"))
	}
	mdef := filepath.Join(paths.AcousticModel, "mdef")
	if ok, err := afero.Exists(fs, mdef); err != nil || !ok {
		return initError(mdef, ErrModelInvalid, err)
	}

	if err := requireFile(fs, paths.Dictionary, ErrDictionaryMissing); err != nil {
		return err
	}
	return requireFile(fs, paths.Grammar, ErrGrammarMissing)
}

// WriteGrammar stores a rendered grammar at path, creating parent directories.
func WriteGrammar(fs afero.Fs, path, grammar string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create grammar directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, []byte(grammar), 0o644); err != nil {
		return fmt.Errorf("failed to write grammar %q: %w", path, err)
	}
	return nil
}

func requireFile(fs afero.Fs, path string, sentinel error) error {
	info, err := fs.Stat(path)
	if err != nil {
		return initError(path, sentinel, err)
	}
	if info.IsDir() {
		return initError(path, sentinel, errors.New("is a directory"))
	}
	return nil
}

func initError(path string, sentinel, cause error) error {
	if cause != nil && !errors.Is(cause, os.ErrNotExist) {
		cause = fmt.Errorf("%w: %v", sentinel, cause)
	} else {
		cause = sentinel
	}
	return &domain.InitError{Path: path, Reason: sentinel.Error(), Err: cause}
}
