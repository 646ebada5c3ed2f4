package tesseract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinesOf(t *testing.T) {
	res := linesOf("\n  Invoice 42\n\nTotal:  $10 \n")
	assert.Len(t, res.TextLines, 2)
	assert.Equal(t, "Invoice 42 Total:  $10", res.Text())

	assert.Empty(t, linesOf(" \n\t").TextLines)
}
