package stockinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Master files published by KIS (CP949)
var masterFiles = []struct {
	Name   string
	Market string
}{
	{Name: "kospi_code.mst", Market: "KOSPI"},
	{Name: "kosdaq_code.mst", Market: "KOSDAQ"},
}

// 표준코드(KR + 10자리) 뒤의 한글명, 증권그룹구분코드 앞까지
var masterNamePattern = regexp.MustCompile(`KR[A-Z0-9]{10}(.+?)(ST|MF|EF|DR|SW|SR|EN|BC|PF|IF)`)

// Fixed-column fallback for the name (rune offsets)
const (
	masterCodeWidth = 9
	masterNameStart = 21
	masterNameEnd   = 60
)

// ParseMaster reads a CP949 master file body
func ParseMaster(r io.Reader, market string) ([]Stock, error) {
	scanner := bufio.NewScanner(transform.NewReader(r, korean.EUCKR.NewDecoder()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var stocks []Stock
	for scanner.Scan() {
		if s, ok := parseMasterLine(scanner.Text(), market); ok {
			stocks = append(stocks, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan master: %w", err)
	}
	return stocks, nil
}

func parseMasterLine(line, market string) (Stock, bool) {
	runes := []rune(line)
	if len(runes) < masterCodeWidth {
		return Stock{}, false
	}

	code := strings.TrimSpace(string(runes[:masterCodeWidth]))
	if code == "" {
		return Stock{}, false
	}

	name := ""
	if m := masterNamePattern.FindStringSubmatch(line); m != nil {
		name = strings.TrimSpace(m[1])
	} else if len(runes) > masterNameStart {
		end := masterNameEnd
		if end > len(runes) {
			end = len(runes)
		}
		name = strings.TrimSpace(string(runes[masterNameStart:end]))
	}
	if name == "" {
		return Stock{}, false
	}
	return Stock{Code: code, Name: name, Market: market}, true
}

// LoadMasterDir loads every known master file in dir. Missing files are skipped
// and reported through missing.
func LoadMasterDir(dir string) (stocks []Stock, missing []string, err error) {
	for _, mf := range masterFiles {
		path := filepath.Join(dir, mf.Name)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			missing = append(missing, path)
			continue
		}
		if err != nil {
			return nil, missing, fmt.Errorf("open %s: %w", path, err)
		}

		parsed, err := ParseMaster(f, mf.Market)
		f.Close()
		if err != nil {
			return nil, missing, fmt.Errorf("parse %s: %w", path, err)
		}
		stocks = append(stocks, parsed...)
	}
	return stocks, missing, nil
}
