package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.lost.host/meutraa/flowtrain/internal/game"
)

// DefaultParser reads sequence files: a header of #KEY:value; tags followed
// by one beat per line, blue position first, red second. A "-" expects the
// hand to be off the grid. Lines starting with // are ignored.
//
//	#NAME:Basics;
//	#BPM:90;
//	#START:w e;
//	n s
//	- e
type DefaultParser struct{}

func (p *DefaultParser) Parse(file string) (*game.Sequence, error) {
	data, err := os.ReadFile(file)
	if nil != err {
		return nil, err
	}
	id := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	seq, err := p.ParseBytes(data, id)
	if nil != err {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return seq, nil
}

// ParseBytes parses a sequence. id is used when the header has no #ID.
func (p *DefaultParser) ParseBytes(data []byte, id string) (*game.Sequence, error) {
	seq := &game.Sequence{ID: id}
	bpmSet := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if strings.HasPrefix(line, "#") {
			key, value, err := p.tag(line)
			if nil != err {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			switch key {
			case "NAME":
				seq.Name = value
			case "ID":
				seq.ID = value
			case "BPM":
				bpm, err := strconv.ParseFloat(value, 64)
				if nil != err || bpm <= 0 {
					return nil, fmt.Errorf("line %d: bpm must be a positive number, got %q", n, value)
				}
				seq.BPM = bpm
				bpmSet = true
			case "START":
				start, err := p.positions(value)
				if nil != err {
					return nil, fmt.Errorf("line %d: start: %w", n, err)
				}
				seq.Start = &start
			}
			continue
		}

		expected, err := p.positions(line)
		if nil != err {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		seq.Beats = append(seq.Beats, game.Beat{Expected: expected})
	}
	if err := scanner.Err(); nil != err {
		return nil, err
	}

	if !bpmSet {
		return nil, fmt.Errorf("missing #BPM")
	}
	if seq.Name == "" {
		seq.Name = seq.ID
	}
	return seq, nil
}

func (p *DefaultParser) tag(line string) (string, string, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(line, "#"), ";")
	key, value, found := strings.Cut(body, ":")
	if !found {
		return "", "", fmt.Errorf("malformed tag %q", line)
	}
	return strings.ToUpper(strings.TrimSpace(key)), strings.TrimSpace(value), nil
}

func (p *DefaultParser) positions(line string) (game.ExpectedPositions, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return game.ExpectedPositions{}, fmt.Errorf("expected a blue and a red position, got %q", line)
	}
	blue, err := p.position(fields[0])
	if nil != err {
		return game.ExpectedPositions{}, fmt.Errorf("blue: %w", err)
	}
	red, err := p.position(fields[1])
	if nil != err {
		return game.ExpectedPositions{}, fmt.Errorf("red: %w", err)
	}
	return game.ExpectedPositions{Blue: blue, Red: red}, nil
}

func (p *DefaultParser) position(field string) (*game.Quadrant, error) {
	if field == "-" {
		return nil, nil
	}
	q, err := game.ParseQuadrant(field)
	if nil != err {
		return nil, err
	}
	return game.Q(q), nil
}
