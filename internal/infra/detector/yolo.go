package detector

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"farmguard/internal/domain"
)

// LoadLabels reads one class name per line.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			labels = append(labels, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	return labels, nil
}

// ParseYOLO decodes a YOLOv8 output tensor laid out as [4+classes][anchors]
// (cx, cy, w, h, then one score per class) and keeps the best class of every
// anchor scoring at least threshold.
func ParseYOLO(data []float32, anchors int, labels []string, threshold float64) []domain.Detection {
	if anchors <= 0 || len(data)%anchors != 0 {
		return nil
	}
	classes := len(data)/anchors - 4
	if classes <= 0 {
		return nil
	}

	var out []domain.Detection
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < classes; c++ {
			if score := data[(4+c)*anchors+i]; score > bestScore {
				best, bestScore = c, score
			}
		}
		if best < 0 || float64(bestScore) < threshold {
			continue
		}

		name := fmt.Sprintf("class_%d", best)
		if best < len(labels) {
			name = labels[best]
		}
		out = append(out, domain.Detection{ClassName: name, Confidence: float64(bestScore)})
	}
	return out
}
