package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// EdgeProvider implements TTS via Microsoft Edge TTS (free, no API key).
// Requires the `edge-tts` CLI tool to be installed:
//
//	pip install edge-tts
type EdgeProvider struct {
	argv   []string // command prefix, e.g. ["python3", "-m", "edge_tts"]
	voice  string // default "en-US-MichelleNeural"
	rate   string // speech rate, e.g. "+0%"
}

// EdgeConfig configures the Edge TTS provider.
type EdgeConfig struct {
	Binary string // default "edge-tts"; may carry arguments, shell-quoted
	Voice  string
	Rate   string
}

// NewEdgeProvider creates an Edge TTS provider.
func NewEdgeProvider(cfg EdgeConfig) *EdgeProvider {
	p := &EdgeProvider{argv: EdgeCommand(cfg.Binary), voice: cfg.Voice, rate: cfg.Rate}
	if p.voice == "" {
		p.voice = "en-US-MichelleNeural"
	}
	return p
}

// EdgeCommand splits a configured edge-tts command line into argv.
// Unparseable input is used verbatim as the program name.
func EdgeCommand(binary string) []string {
	if strings.TrimSpace(binary) == "" {
		return []string{"edge-tts"}
	}
	argv, err := shellwords.Parse(binary)
	if err != nil || len(argv) == 0 {
		return []string{binary}
	}
	return argv
}

func (p *EdgeProvider) Name() string { return "edge" }

func (p *EdgeProvider) MaxInputChars() int { return 3000 }

// SupportsVoice accepts Azure neural voice names.
func (p *EdgeProvider) SupportsVoice(voice string) bool {
	return strings.HasSuffix(voice, "Neural")
}

// Synthesize runs the edge-tts CLI and streams MP3 from its stdout.
func (p *EdgeProvider) Synthesize(ctx context.Context, text string, opts Options) (*SynthResult, error) {
	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}
	args := []string{"--voice", voice, "--text", text, "--write-media", "/dev/stdout"}
	if p.rate != "" {
		args = append(args, "--rate", p.rate)
	}

	cmd := exec.CommandContext(ctx, p.argv[0], slices.Concat(p.argv[1:], args)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("edge-tts stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start edge-tts: %w", err)
	}

	return &SynthResult{
		Audio:     &cmdStream{ReadCloser: stdout, cmd: cmd, stderr: &stderr},
		Extension: "mp3",
		MimeType:  "audio/mpeg",
	}, nil
}

// cmdStream reads a child process's stdout and reaps the process on Close.
// A non-zero exit surfaces as a read error once stdout is drained.
type cmdStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer

	once    sync.Once
	waitErr error
}

func (s *cmdStream) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err == io.EOF {
		if werr := s.wait(); werr != nil {
			return n, fmt.Errorf("edge-tts failed: %w (output: %s)", werr, strings.TrimSpace(s.stderr.String()))
		}
	}
	return n, err
}

func (s *cmdStream) Close() error {
	s.ReadCloser.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.wait()
	return nil
}

func (s *cmdStream) wait() error {
	s.once.Do(func() { s.waitErr = s.cmd.Wait() })
	return s.waitErr
}
