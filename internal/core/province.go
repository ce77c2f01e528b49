package core

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// namePrefixes are administrative prefixes dropped before matching names.
// Entries are already normalized.
var namePrefixes = []string{
	"provinsi ",
	"province of ",
	"prov ",
	"daerah istimewa ",
	"di ",
}

// NormalizeName returns the join form of a province name: NFKD decomposed,
// diacritics stripped, case folded, punctuation collapsed to single spaces,
// and common administrative prefixes removed.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	s = b.String()

	for _, p := range namePrefixes {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			s = s[len(p):]
			break
		}
	}
	return s
}

// provinceResolver resolves references against a Reader, memoizing each
// reference for the lifetime of one call.
type provinceResolver struct {
	r    Reader
	memo map[string]*Province
}

func newProvinceResolver(r Reader) *provinceResolver {
	return &provinceResolver{r: r, memo: make(map[string]*Province)}
}

// resolve returns the province for ref or a NotFoundError.
// A reference that looks like a UUID is only ever matched by id; anything
// else is tried as a code, then as a normalized name.
func (pr *provinceResolver) resolve(ctx context.Context, ref string) (*Province, error) {
	ref = strings.TrimSpace(ref)
	if p, ok := pr.memo[ref]; ok {
		if p == nil {
			return nil, &NotFoundError{Entity: "province", Ref: ref}
		}
		return p, nil
	}

	p, err := resolveProvince(ctx, pr.r, ref)
	if err != nil {
		if KindOf(err) == KindNotFound {
			pr.memo[ref] = nil
		}
		return nil, err
	}
	pr.memo[ref] = p
	return p, nil
}

func resolveProvince(ctx context.Context, r Reader, ref string) (*Province, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &ValidationError{Field: "province", Message: "province reference is required"}
	}

	if id, err := uuid.Parse(ref); err == nil {
		p, err := r.GetProvince(ctx, id.String())
		if err != nil {
			return nil, Infra("get province", err)
		}
		if p == nil {
			return nil, &NotFoundError{Entity: "province", Ref: ref}
		}
		return p, nil
	}

	p, err := r.FindProvinceByCode(ctx, ref)
	if err != nil {
		return nil, Infra("find province by code", err)
	}
	if p != nil {
		return p, nil
	}

	normalized := NormalizeName(ref)
	if normalized != "" {
		p, err = r.FindProvinceByName(ctx, normalized)
		if err != nil {
			return nil, Infra("find province by name", err)
		}
		if p != nil {
			return p, nil
		}
	}

	return nil, &NotFoundError{Entity: "province", Ref: ref}
}
