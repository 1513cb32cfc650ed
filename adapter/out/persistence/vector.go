package persistence

import "fmt"

// pgVector formats a float32 vector as a pgvector literal.
func pgVector(v []float32) string {
	if len(v) == 0 {
		return "[0]"
	}
	buf := make([]byte, 0, len(v)*13+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = fmt.Appendf(buf, "%f", f)
	}
	buf = append(buf, ']')
	return string(buf)
}
