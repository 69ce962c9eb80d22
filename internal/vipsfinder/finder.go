// Package vipsfinder отвечает за поиск бинарника vips в системе.
package vipsfinder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// EnvVar - переменная окружения с путём к vips.
const EnvVar = "POPULARFEED_VIPS"

// ErrNotFound возвращается, если ни один кандидат не оказался рабочим vips.
var ErrNotFound = errors.New("vips не найден")

// VipsInfo содержит информацию о найденном vips.
type VipsInfo struct {
	// Path - абсолютный путь к бинарнику vips.
	Path string

	// Version - версия vips (например, "8.14.2").
	Version string
}

// Finder ищет бинарник vips.
type Finder struct {
	// CustomPath - пользовательский путь к vips (из флага --vips-path).
	CustomPath string

	// EnvVar - имя переменной окружения для пути к vips.
	EnvVar string

	// Timeout - таймаут проверки одного кандидата.
	Timeout time.Duration
}

// NewFinder создаёт новый Finder.
func NewFinder(customPath string) *Finder {
	return &Finder{
		CustomPath: customPath,
		EnvVar:     EnvVar,
		Timeout:    5 * time.Second,
	}
}

// Candidates возвращает пути для проверки без повторов, по приоритету:
// явный путь, переменная окружения, PATH, директория исполняемого файла.
func (f *Finder) Candidates() []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	add := func(p string) {
		if p == "" {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	add(f.CustomPath)
	if f.EnvVar != "" {
		add(os.Getenv(f.EnvVar))
	}
	if p, err := exec.LookPath(vipsBinaryName()); err == nil {
		add(p)
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		add(filepath.Join(dir, "bin", runtime.GOOS+"-"+runtime.GOARCH, vipsBinaryName()))
		add(filepath.Join(dir, vipsBinaryName()))
	}
	return out
}

// Find возвращает первый рабочий vips из Candidates.
func (f *Finder) Find(ctx context.Context) (*VipsInfo, error) {
	var errs []error
	for _, path := range f.Candidates() {
		info, err := f.checkVips(ctx, path)
		if err == nil {
			return info, nil
		}
		errs = append(errs, err)
	}

	hint := fmt.Sprintf("установите libvips-tools или задайте %s / --vips-path", f.EnvVar)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, hint, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, hint)
}

// checkVips запускает "vips --version" с таймаутом.
func (f *Finder) checkVips(ctx context.Context, path string) (*VipsInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь %s: %w", path, err)
	}
	if st, err := os.Stat(abs); err != nil {
		return nil, err
	} else if st.IsDir() {
		return nil, fmt.Errorf("%s: это директория", abs)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, abs, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("%s --version: %w", abs, err)
	}
	return &VipsInfo{Path: abs, Version: parseVersion(string(out))}, nil
}

// parseVersion извлекает номер версии: "vips-8.14.2-Tue Mar 28" -> "8.14.2".
func parseVersion(output string) string {
	fields := strings.Fields(strings.TrimSpace(output))
	if len(fields) == 0 {
		return ""
	}
	v := fields[0]
	if v == "vips" && len(fields) > 1 {
		v = fields[1]
	}
	v = strings.TrimPrefix(v, "vips-")
	if i := strings.IndexByte(v, '-'); i > 0 {
		v = v[:i]
	}
	return v
}

// vipsBinaryName возвращает имя бинарника vips для текущей ОС.
func vipsBinaryName() string {
	if runtime.GOOS == "windows" {
		return "vips.exe"
	}
	return "vips"
}
