package traffic

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func testClassifier() *Classifier {
	return NewClassifier(
		[]string{"*.chinamobile.com", "*mcloud*", "ai.yun.139.com"},
		[]string{"dc.cmicapm.com"},
		[]string{"*cdn*", "*.googleapis.com", "ad.*"},
	)
}

func TestClassify(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name string
		host string
		url  string
		want Category
	}{
		{"tag exact", "dc.cmicapm.com", "", CategoryTag},
		{"tag with port", "dc.cmicapm.com:443", "", CategoryTag},
		{"business glob", "api.chinamobile.com", "", CategoryBusiness},
		{"business substring", "mcloud.139.com", "", CategoryBusiness},
		{"business exact", "AI.yun.139.com", "", CategoryBusiness},
		{"noise beats business", "ad.mcloud.139.com", "", CategoryNoise},
		{"noise cdn", "img.cdn.example.com", "", CategoryNoise},
		{"unmatched defaults to noise", "example.org", "", CategoryNoise},
		{"empty host", "", "", CategoryNoise},
		{"host from url", "", "https://dc.cmicapm.com/collect?x=1", CategoryTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.host, tt.url))
		})
	}
}

func TestClassify_TagBeatsBusiness(t *testing.T) {
	c := NewClassifier([]string{"*.example.com"}, []string{"track.example.com"}, nil)
	assert.Equal(t, CategoryTag, c.Classify("track.example.com", ""))
	assert.Equal(t, CategoryBusiness, c.Classify("api.example.com", ""))
}

func TestClassifierPriorityProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("host in both tag and business lists is tag", prop.ForAll(
		func(label string) bool {
			host := label + ".example.com"
			c := NewClassifier([]string{host}, []string{host}, []string{host})
			return c.Classify(host, "") == CategoryTag
		},
		gen.Identifier(),
	))

	properties.Property("host matching nothing is noise", prop.ForAll(
		func(label string) bool {
			c := NewClassifier([]string{"*.business.test"}, []string{"tag.test"}, nil)
			return c.Classify(label+".unrelated.org", "") == CategoryNoise
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
