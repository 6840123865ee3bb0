package stage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/nao1215/clsprep/internal/config"
	"github.com/nao1215/clsprep/internal/dataset"
)

// Stage1DirMarker prefixes the stdout line through which a Stage 1 command
// reports the image directory it actually produced.
const Stage1DirMarker = "STAGE1_IMAGES_DIR="

// EnvPrefix prefixes the environment variables exported to stage commands.
const EnvPrefix = "CLSPREP_"

// Placeholder names available to stage command lines as ${NAME}.
const (
	VarRawRoot          = "RAW_ROOT"
	VarStage1ImagesDir  = "STAGE1_IMAGES_DIR"
	VarLabelPath        = "LABEL_PATH"
	VarForceCopy        = "FORCE_COPY"
	VarPercPos          = "PERC_POS"
	VarEnginePath       = "ENGINE_PATH"
	VarCleanedImagesDir = "CLEANED_IMAGES_DIR"
	VarNumJobs          = "N_JOBS"
	VarNumChunks        = "N_CHUNKS"
)

// CommandProcessor runs external programs for both stages of one dataset.
// This is how the dataset-specific ingestion and decoding tools, which live
// outside this repository, are plugged into the driver.
type CommandProcessor struct {
	dataset dataset.ID
	stage1  []string
	stage2  []string
	dir     string
	env     map[string]string
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
}

// CommandOption configures a CommandProcessor.
type CommandOption func(*CommandProcessor)

// WithCommandLogger sets the logger.
func WithCommandLogger(logger *slog.Logger) CommandOption {
	return func(c *CommandProcessor) {
		c.logger = logger
	}
}

// WithCommandOutput sets where the command output is streamed.
// Defaults are os.Stdout and os.Stderr.
func WithCommandOutput(stdout, stderr io.Writer) CommandOption {
	return func(c *CommandProcessor) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// NewCommandProcessor parses the command lines in ps.
func NewCommandProcessor(id dataset.ID, ps config.ProcessorSettings, opts ...CommandOption) (*CommandProcessor, error) {
	stage1, err := parseCommand(ps.Stage1)
	if err != nil {
		return nil, fmt.Errorf("invalid stage1 command for %s: %w", id, err)
	}
	stage2, err := parseCommand(ps.Stage2)
	if err != nil {
		return nil, fmt.Errorf("invalid stage2 command for %s: %w", id, err)
	}

	c := &CommandProcessor{
		dataset: id,
		stage1:  stage1,
		stage2:  stage2,
		dir:     ps.Dir,
		env:     ps.Env,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Stage1 implements Processor.
func (c *CommandProcessor) Stage1(ctx context.Context, req Stage1Request) (string, error) {
	percPos := ""
	if req.PercPos != nil {
		percPos = strconv.FormatFloat(*req.PercPos, 'f', -1, 64)
	}
	vars := map[string]string{
		VarRawRoot:         req.RawRoot,
		VarStage1ImagesDir: req.ImagesDir,
		VarLabelPath:       req.LabelPath,
		VarForceCopy:       strconv.FormatBool(req.ForceCopy),
		VarPercPos:         percPos,
	}

	out, err := c.run(ctx, "stage1", c.stage1, vars)
	if err != nil {
		return "", err
	}

	dir := reportedDir(out)
	if dir == "" {
		return req.ImagesDir, nil
	}
	if !filepath.IsAbs(dir) && c.dir != "" {
		dir = filepath.Join(c.dir, dir)
	}
	if dir != req.ImagesDir {
		c.logger.Info("stage1 reported a different image directory",
			"dataset", c.dataset,
			"requested", req.ImagesDir,
			"reported", dir,
		)
	}
	return dir, nil
}

// Stage2 implements Processor.
func (c *CommandProcessor) Stage2(ctx context.Context, req Stage2Request) error {
	vars := map[string]string{
		VarEnginePath:       req.EnginePath,
		VarStage1ImagesDir:  req.ImagesDir,
		VarLabelPath:        req.LabelPath,
		VarCleanedImagesDir: req.OutputDir,
		VarNumJobs:          strconv.Itoa(req.Jobs),
		VarNumChunks:        strconv.Itoa(req.Chunks),
	}
	_, err := c.run(ctx, "stage2", c.stage2, vars)
	return err
}

// run executes argv with vars expanded and returns the captured stdout.
func (c *CommandProcessor) run(ctx context.Context, stage string, argv []string, vars map[string]string) (string, error) {
	args := expandArgs(argv, vars)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Commands come from the operator's settings file
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), commandEnv(c.env, vars)...)

	var captured bytes.Buffer
	cmd.Stdout = io.MultiWriter(&captured, c.stdout)
	cmd.Stderr = c.stderr

	c.logger.Debug("running stage command",
		"dataset", c.dataset,
		"stage", stage,
		"command", args[0],
		"args", args[1:],
	)

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s %s cancelled: %w", c.dataset, stage, errors.Join(ctxErr, err))
		}
		return "", fmt.Errorf("%s %s command failed: %w", c.dataset, stage, err)
	}
	return captured.String(), nil
}

// parseCommand splits a command line into arguments using shell quoting rules.
func parseCommand(command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("command cannot be empty")
	}
	if strings.ContainsAny(command, "\r\n") {
		return nil, errors.New("command cannot contain newlines")
	}

	parts, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("command cannot be empty after parsing")
	}
	if strings.HasPrefix(parts[0], "-") {
		return nil, errors.New("command name cannot start with dash")
	}
	return parts, nil
}

// expandArgs replaces ${NAME} in every argument. Names not in vars fall back
// to the process environment.
func expandArgs(argv []string, vars map[string]string) []string {
	mapping := func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	}
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = os.Expand(a, mapping)
	}
	return out
}

// commandEnv returns the extra environment of a stage command in a stable order.
func commandEnv(extra, vars map[string]string) []string {
	env := make([]string, 0, len(extra)+len(vars))
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	for k, v := range vars {
		env = append(env, EnvPrefix+k+"="+v)
	}
	sort.Strings(env)
	return env
}

// reportedDir returns the directory announced on the last marker line of out.
func reportedDir(out string) string {
	dir := ""
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, Stage1DirMarker); ok {
			dir = strings.TrimSpace(rest)
		}
	}
	return dir
}
