package pool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/math15/visagate/internal/model"
)

// ErrMalformedLine is returned when an import line does not match the
// host:port:username:password format.
var ErrMalformedLine = errors.New("malformed identity line: want host:port:username:password")

// ParseIdentityLine parses one line of the host:port:username:password
// import format into an identity. The region tag is derived from the
// username. Surrounding whitespace is ignored.
func ParseIdentityLine(line string) (*model.EgressIdentity, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrMalformedLine
	}

	parts := strings.Split(line, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: got %d fields", ErrMalformedLine, len(parts))
	}

	host := strings.TrimSpace(parts[0])
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrMalformedLine)
	}

	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %q", ErrMalformedLine, parts[1])
	}

	username := strings.TrimSpace(parts[2])
	password := strings.TrimSpace(parts[3])

	return &model.EgressIdentity{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Region:   model.RegionFromUsername(username),
		Active:   true,
		Status:   model.StatusPending,
	}, nil
}

// ImportError records a single rejected line during bulk import.
type ImportError struct {
	// Line is the 1-based line number in the input.
	Line int

	// Text is the offending line, trimmed.
	Text string

	// Err describes why the line was rejected.
	Err error
}

// ImportResult summarizes a bulk import run.
type ImportResult struct {
	// Added is the number of identities inserted.
	Added int

	// Skipped is the number of duplicates already present in the pool.
	Skipped int

	// Errors lists rejected lines. A run with errors is not a failure;
	// valid lines are still imported.
	Errors []ImportError
}

// ImportReader reads host:port:username:password lines from r and inserts
// them into the pool. Blank lines and lines starting with '#' are ignored.
// Duplicates are counted as skipped, malformed lines as errors; neither
// aborts the run.
func (p *Pool) ImportReader(ctx context.Context, r io.Reader) (*ImportResult, error) {
	result := &ImportResult{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		identity, err := ParseIdentityLine(line)
		if err != nil {
			result.Errors = append(result.Errors, ImportError{
				Line: lineNo,
				Text: line,
				Err:  err,
			})
			continue
		}

		if _, err := p.Insert(ctx, identity); err != nil {
			if errors.Is(err, ErrDuplicate) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("failed to import line %d: %w", lineNo, err)
		}
		result.Added++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("failed to read import input: %w", err)
	}

	return result, nil
}
