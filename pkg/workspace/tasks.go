// Package workspace provides the file and directory tasks around an
// experiment run: working-directory lifecycle, copying model files into
// place, keyword substitution across input templates, and writing input
// files.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/keywords"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// CreateTempDirTask creates a fresh temporary directory and makes it the
// working directory.
type CreateTempDirTask struct{}

// CreateTempDir creates a task that sets up a new temporary working
// directory.
func CreateTempDir() *CreateTempDirTask {
	return &CreateTempDirTask{}
}

// Run implements the pipeline.Task interface.
func (t *CreateTempDirTask) Run(ctx context.Context, env *pipeline.Env) error {
	dir, err := os.MkdirTemp("", "talaria-")
	if err != nil {
		return fmt.Errorf("creating temporary directory: %w", err)
	}
	env.SetWorkDir(dir)
	env.Logger().Info("Created temporary directory", zap.String("dir", dir))
	return nil
}

// DeleteTempDirTask removes the working directory created by CreateTempDir.
type DeleteTempDirTask struct{}

// DeleteTempDir creates a task that recursively deletes the working
// directory.
func DeleteTempDir() *DeleteTempDirTask {
	return &DeleteTempDirTask{}
}

// Run implements the pipeline.Task interface.
func (t *DeleteTempDirTask) Run(ctx context.Context, env *pipeline.Env) error {
	dir, err := env.WorkDir()
	if err != nil {
		return err
	}
	env.Logger().Info("Deleting temporary directory", zap.String("dir", dir))
	return os.RemoveAll(dir)
}

// SetWorkDirTask sets the working directory to a fixed path.
type SetWorkDirTask struct {
	dir string
}

// SetWorkDir creates a task that makes dir the working directory.
func SetWorkDir(dir string) *SetWorkDirTask {
	return &SetWorkDirTask{dir: dir}
}

// Run implements the pipeline.Task interface.
func (t *SetWorkDirTask) Run(ctx context.Context, env *pipeline.Env) error {
	env.SetWorkDir(t.dir)
	env.Logger().Info("Set work directory", zap.String("dir", t.dir))
	return nil
}

// DeleteTask removes files or directories.
type DeleteTask struct {
	paths []string
}

// Delete creates a task that recursively deletes each of the given paths.
func Delete(paths ...string) *DeleteTask {
	return &DeleteTask{paths: paths}
}

// Run implements the pipeline.Task interface.
func (t *DeleteTask) Run(ctx context.Context, env *pipeline.Env) error {
	for _, path := range t.paths {
		env.Logger().Info("Deleting", zap.String("path", path))
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
	}
	return nil
}

// CopyTask copies a directory tree into the working directory or an
// explicit destination.
type CopyTask struct {
	from string
	to   string
}

// Copy creates a task that copies the contents of from into the working
// directory.
func Copy(from string) *CopyTask {
	return &CopyTask{from: from}
}

// CopyTo creates a task that copies the contents of from into to.
func CopyTo(from, to string) *CopyTask {
	return &CopyTask{from: from, to: to}
}

// Run implements the pipeline.Task interface.
func (t *CopyTask) Run(ctx context.Context, env *pipeline.Env) error {
	to := t.to
	if to == "" {
		dir, err := env.WorkDir()
		if err != nil {
			return err
		}
		to = dir
	}
	env.Logger().Info("Copying", zap.String("from", t.from), zap.String("to", to))
	if err := copyTree(t.from, to); err != nil {
		return fmt.Errorf("copying %s to %s: %w", t.from, to, err)
	}
	return nil
}

// SubstituteTask replaces ${keyword} placeholders in files with their
// environment values.
type SubstituteTask struct {
	folder  string
	include string
	exclude string
}

// SubstituteOption configures a SubstituteTask.
type SubstituteOption func(*SubstituteTask)

// InFolder substitutes in the given folder instead of the working
// directory.
func InFolder(folder string) SubstituteOption {
	return func(t *SubstituteTask) {
		t.folder = folder
	}
}

// Including restricts substitution to files whose name matches the glob
// pattern.
func Including(pattern string) SubstituteOption {
	return func(t *SubstituteTask) {
		t.include = pattern
	}
}

// Excluding skips files whose name matches the glob pattern.
func Excluding(pattern string) SubstituteOption {
	return func(t *SubstituteTask) {
		t.exclude = pattern
	}
}

// Substitute creates a task that walks the working directory (or the
// configured folder) and replaces known ${keyword} placeholders in every
// matching file. Placeholders without an environment value are left in
// place; input templates may carry markers owned by the program itself.
func Substitute(options ...SubstituteOption) *SubstituteTask {
	t := &SubstituteTask{include: "*"}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Run implements the pipeline.Task interface.
func (t *SubstituteTask) Run(ctx context.Context, env *pipeline.Env) error {
	folder := t.folder
	if folder == "" {
		dir, err := env.WorkDir()
		if err != nil {
			return err
		}
		folder = dir
	}

	env.Logger().Info("Substituting keywords", zap.String("folder", folder))
	return filepath.Walk(folder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		name := filepath.Base(path)
		if ok, _ := filepath.Match(t.include, name); !ok {
			return nil
		}
		if t.exclude != "" {
			if ok, _ := filepath.Match(t.exclude, name); ok {
				return nil
			}
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		resolved := keywords.ResolveKnown(string(content), env)
		if resolved == string(content) {
			return nil
		}
		return os.WriteFile(path, []byte(resolved), info.Mode().Perm())
	})
}

// WriteFileTask writes a file inside the working directory.
type WriteFileTask struct {
	file    string
	content string
}

// WriteFile creates a task that writes content, with ${keyword}
// placeholders resolved, to the named file relative to the working
// directory.
func WriteFile(file, content string) *WriteFileTask {
	return &WriteFileTask{file: file, content: content}
}

// Run implements the pipeline.Task interface.
func (t *WriteFileTask) Run(ctx context.Context, env *pipeline.Env) error {
	dir, err := env.WorkDir()
	if err != nil {
		return err
	}

	content, err := keywords.Resolve(t.content, env)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, t.file)
	env.Logger().Info("Writing file", zap.String("file", path))
	return os.WriteFile(path, []byte(content), 0o644)
}

// ValueConversion converts a substituted string value before it is written
// by WriteJSON.
type ValueConversion func(value string) (any, error)

// WriteJSONTask writes a map as a JSON file, resolving placeholders in
// string values.
type WriteJSONTask struct {
	values      map[string]any
	file        string
	conversions map[string]ValueConversion
}

// WriteJSON creates a task that writes values to the named file as JSON.
// String values have ${keyword} placeholders resolved; conversions, keyed
// by field name, turn substituted strings into typed values.
func WriteJSON(values map[string]any, file string, conversions map[string]ValueConversion) *WriteJSONTask {
	return &WriteJSONTask{values: values, file: file, conversions: conversions}
}

// Run implements the pipeline.Task interface.
func (t *WriteJSONTask) Run(ctx context.Context, env *pipeline.Env) error {
	out := make(map[string]any, len(t.values))
	for key, value := range t.values {
		if s, ok := value.(string); ok {
			resolved, err := keywords.Resolve(s, env)
			if err != nil {
				return err
			}
			if convert, ok := t.conversions[key]; ok {
				converted, err := convert(resolved)
				if err != nil {
					return fmt.Errorf("converting field %q: %w", key, err)
				}
				out[key] = converted
				continue
			}
			out[key] = resolved
			continue
		}
		out[key] = value
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", t.file, err)
	}
	env.Logger().Info("Writing JSON file", zap.String("file", t.file))
	return os.WriteFile(t.file, data, 0o644)
}
