// Package replay 离线回放加速度记录，用于调阈值和回归检查
package replay

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AnishVcode/senior-launcher/internal/consumer"
	"github.com/AnishVcode/senior-launcher/internal/detector"
)

// Format 记录文件格式
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// FormatFromPath 按扩展名判断格式
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown trace format for %q: use .csv or .jsonl", path)
	}
}

// Read 按格式解析记录
func Read(r io.Reader, format Format) ([]detector.Sample, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatJSONL:
		return ReadJSONL(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ReadCSV 读取 timestamp_ms,x,y,z 行；第一列不是数字的表头行跳过，空行忽略
func ReadCSV(r io.Reader) ([]detector.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var samples []detector.Sample
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if first {
			first = false
			if _, err := strconv.ParseInt(rec[0], 10, 64); err != nil {
				continue
			}
		}

		s, err := parseRecord(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseRecord(rec []string) (detector.Sample, error) {
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return detector.Sample{}, fmt.Errorf("invalid timestamp %q", rec[0])
	}
	var axes [3]float64
	for i := range axes {
		axes[i], err = strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return detector.Sample{}, fmt.Errorf("invalid axis value %q", rec[i+1])
		}
	}
	return detector.Sample{Timestamp: ts, X: axes[0], Y: axes[1], Z: axes[2]}, nil
}

// ReadJSONL 每行一个与在线接入相同格式的 payload：单个采样或 {"samples": [...]} 批量
func ReadJSONL(r io.Reader) ([]detector.Sample, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var samples []detector.Sample
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		batch, err := consumer.DecodeSamples([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, batch...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return samples, nil
}
