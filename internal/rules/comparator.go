package rules

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/shaiso/Buffy/internal/domain"
)

// Comparator — примитивы сравнения строк для условий правил.
//
// Без состояния, кроме кэша скомпилированных регулярных выражений.
type Comparator struct {
	patterns sync.Map // pattern -> compiledPattern
	logger   *slog.Logger
}

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// NewComparator создаёт Comparator.
func NewComparator(logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparator{logger: logger}
}

// Compare сравнивает source (значение условия) с target (поле item).
//
// EQ_REGEXP — полное совпадение шаблона source с target.
// Неизвестный тип сравнения и невалидный шаблон дают false.
func (c *Comparator) Compare(kind domain.ComparisonType, source, target string) bool {
	switch kind {
	case domain.EqLiteral:
		return source == target
	case domain.EqRegexp:
		re, ok := c.compile(source)
		return ok && re.MatchString(target)
	case domain.Contains:
		return strings.Contains(target, source)
	case domain.StartsWith:
		return strings.HasPrefix(target, source)
	case domain.EndsWith:
		return strings.HasSuffix(target, source)
	default:
		c.logger.Error("unknown comparison type", "comparison_type", kind)
		return false
	}
}

// compile возвращает шаблон, привязанный к началу и концу строки.
// Результат (включая ошибку) кэшируется по исходному шаблону.
func (c *Comparator) compile(pattern string) (*regexp.Regexp, bool) {
	if cached, ok := c.patterns.Load(pattern); ok {
		cp := cached.(compiledPattern)
		return cp.re, cp.err == nil
	}

	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		c.logger.Warn("invalid rule pattern", "pattern", pattern, "error", err)
	}
	c.patterns.Store(pattern, compiledPattern{re: re, err: err})

	return re, err == nil
}
