package nfo

import (
	"encoding/xml"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/folderscrape/internal/domain"
)

// YearStrategy 决定如何从原始发行日期文本中取四位年份。
type YearStrategy int

const (
	// YearISOPrefix 取 ISO 日期（"T" 之前部分）的前 4 位；不是数字时为空。
	YearISOPrefix YearStrategy = iota
	// YearRegex 取文本中第一个连续 4 位数字，适用于站点自由文本（2023年5月1日）。
	YearRegex
)

var fourDigits = regexp.MustCompile(`\d{4}`)

// Options 是按 profile 变化的输出策略。
type Options struct {
	IncludeNumber bool
	Year          YearStrategy
}

// movie 是固定形状的 sidecar：字段缺失时输出空元素，而不是省略元素。
// 唯一的例外是 number：由 Options.IncludeNumber 决定整个元素是否出现。
type movie struct {
	XMLName xml.Name `xml:"movie"`

	Title     string   `xml:"title"`
	Number    *string  `xml:"number,omitempty"`
	Director  string   `xml:"director"`
	Year      string   `xml:"year"`
	Plot      string   `xml:"plot"`
	Genres    []string `xml:"genre"`
	Premiered string   `xml:"premiered"`
	Tagline   string   `xml:"tagline"`
	Poster    string   `xml:"poster"`
}

// Header 是 sidecar 的 XML 声明。
const Header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Encode 把 Record 转成媒体中心可读取的 movie.nfo（XML）。
//
// 规则：
// - tagline 与 title 相同；poster 是封面的远程 URL（不是本地文件名）
// - genre 去空白、去重、保持首次出现顺序
// - 文本内容由 encoding/xml 转义（&、< 等不会破坏文档结构）
func Encode(rec domain.Record, opt Options) ([]byte, error) {
	title := strings.TrimSpace(rec.Title)
	m := movie{
		Title:     title,
		Director:  strings.TrimSpace(rec.Director()),
		Year:      Year(rec.ReleaseDate, opt.Year),
		Plot:      strings.TrimSpace(rec.Summary),
		Genres:    normList(rec.Genres),
		Premiered: Premiered(rec.ReleaseDate),
		Tagline:   title,
		Poster:    strings.TrimSpace(rec.CoverURL),
	}
	if opt.IncludeNumber {
		n := strings.TrimSpace(rec.Number)
		m.Number = &n
	}

	b, err := xml.MarshalIndent(m, "", "    ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(Header)+len(b)+1)
	out = append(out, Header...)
	out = append(out, b...)
	out = append(out, '\n')
	return out, nil
}

// Year 按策略从原始日期文本中取年份；取不到时返回空串。
func Year(release string, s YearStrategy) string {
	release = strings.TrimSpace(release)
	if release == "" {
		return ""
	}
	if s == YearRegex {
		return fourDigits.FindString(release)
	}

	date := datePart(release)
	if len(date) < 4 {
		return ""
	}
	y := date[:4]
	for _, c := range y {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return y
}

// Premiered 返回完整发行日期：ISO 日期部分可解析时取 YYYY-MM-DD，否则原样（去首尾空白）。
func Premiered(release string) string {
	release = strings.TrimSpace(release)
	date := datePart(release)
	if _, err := time.Parse("2006-01-02", date); err == nil {
		return date
	}
	return release
}

func datePart(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
