package utils

import (
	"fmt"
	"mime"
	u "net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const ToolUserAgent = "Modelgrab-CLI"

// TempDirName is where in-progress chunk part files live, next to the
// destination file.
const TempDirName = ".modelgrab-temp"

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// FilenameFromDisposition extracts a usable filename from a
// Content-Disposition header value, or returns "".
func FilenameFromDisposition(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return filenameRegex.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && fn != "" {
		if strings.HasPrefix(fn, "UTF-8''") {
			unescaped, _ := u.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
			return filenameRegex.ReplaceAllString(unescaped, "_")
		}
	}
	return ""
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	parsed := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			continue
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed renders a transfer rate as B/s, KB/s or MB/s.
func FormatSpeed(bytesPerSec float64) string {
	const unit = 1024
	switch {
	case bytesPerSec >= unit*unit:
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(unit*unit))
	case bytesPerSec >= unit:
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/unit)
	default:
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	}
}

// Clean removes the temp part-file directory for the given output path.
func Clean(outputPath string) error {
	tempDir := filepath.Join(filepath.Dir(outputPath), TempDirName)
	if err := os.RemoveAll(tempDir); err != nil {
		return err
	}
	return nil
}
