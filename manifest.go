package jarverifier

import (
	"bytes"
	"strings"
)

const (
	attrName                 = "Name"
	attrManifestVersion      = "Manifest-Version"
	attrSignatureVersion     = "Signature-Version"
	attrCreatedBy            = "Created-By"
	attrDigestAlgorithms     = "Digest-Algorithms"
	attrDigestSuffix         = "-Digest"
	attrDigestManifestSuffix = "-Digest-Manifest"
	attrDigestMainAttrSuffix = "-Digest-Manifest-Main-Attributes"
	attrAndroidApkSigned     = "X-Android-APK-Signed"
)

type attribute struct {
	name, value string
}

// section is one block of attributes of a manifest or signature file.
// start and length delimit the exact bytes of the section, including the
// blank line which terminates it, in the file it was parsed from.
type section struct {
	attrs  []attribute
	start  int
	length int
}

// Name returns the value of the first attribute if it is "Name".
func (s *section) Name() (string, bool) {
	if len(s.attrs) != 0 && strings.EqualFold(s.attrs[0].name, attrName) {
		return s.attrs[0].value, true
	}
	return "", false
}

// Get looks an attribute up ignoring case. The first match wins.
func (s *section) Get(name string) (string, bool) {
	for _, a := range s.attrs {
		if strings.EqualFold(a.name, name) {
			return a.value, true
		}
	}
	return "", false
}

func (s *section) bytes(raw []byte) []byte {
	return raw[s.start : s.start+s.length]
}

// manifest is a parsed META-INF/MANIFEST.MF or .SF file.
type manifest struct {
	rawData  []byte
	main     *section
	sections []*section
}

type manifestParserContext struct {
	data     []byte
	pos      int
	eof      bool

	// line read ahead; an empty non-nil slice marks a pending end of section
	buffered []byte
}

var emptyLine = []byte{}

func parseManifest(data []byte) *manifest {
	ctx := manifestParserContext{data: data}

	m := &manifest{rawData: data}
	m.main = ctx.readSection()
	if m.main == nil {
		m.main = &section{}
	}
	for {
		s := ctx.readSection()
		if s == nil {
			break
		}
		m.sections = append(m.sections, s)
	}
	return m
}

func (ctx *manifestParserContext) readSection() *section {
	var start int
	var line []byte
	for {
		start = ctx.pos
		line = ctx.readAttribute()
		if line == nil {
			return nil
		} else if len(line) != 0 {
			break
		}
	}

	s := &section{start: start}
	s.attrs = append(s.attrs, parseAttribute(line))
	for {
		line = ctx.readAttribute()
		if len(line) == 0 {
			break
		}
		s.attrs = append(s.attrs, parseAttribute(line))
	}
	s.length = ctx.pos - start
	return s
}

// readAttribute returns the next logical line with continuation lines
// joined, an empty slice at the end of a section or nil at the end of input.
func (ctx *manifestParserContext) readAttribute() []byte {
	if ctx.buffered != nil && len(ctx.buffered) == 0 {
		ctx.buffered = nil
		return emptyLine
	}

	line := ctx.readLine()
	if line == nil {
		if ctx.buffered != nil {
			res := ctx.buffered
			ctx.buffered = nil
			return res
		}
		return nil
	}

	if len(line) == 0 {
		if ctx.buffered != nil {
			res := ctx.buffered
			ctx.buffered = emptyLine
			return res
		}
		return emptyLine
	}

	var attr []byte
	if ctx.buffered == nil {
		attr = append([]byte{}, line...)
	} else {
		if line[0] != ' ' {
			res := ctx.buffered
			ctx.buffered = line
			return res
		}
		attr = append(ctx.buffered, line[1:]...)
		ctx.buffered = nil
	}

	for {
		line = ctx.readLine()
		switch {
		case line == nil:
			return attr
		case len(line) == 0:
			ctx.buffered = emptyLine
			return attr
		case line[0] == ' ':
			attr = append(attr, line[1:]...)
		default:
			ctx.buffered = line
			return attr
		}
	}
}

// readLine returns the next line without its terminator (CRLF, LF or CR),
// or nil once the input is exhausted.
func (ctx *manifestParserContext) readLine() []byte {
	if ctx.eof || ctx.pos >= len(ctx.data) {
		ctx.eof = true
		return nil
	}

	start := ctx.pos
	lineEnd, next := len(ctx.data), len(ctx.data)
	if i := bytes.IndexAny(ctx.data[start:], "\r\n"); i >= 0 {
		lineEnd = start + i
		next = lineEnd + 1
		if ctx.data[lineEnd] == '\r' && next < len(ctx.data) && ctx.data[next] == '\n' {
			next++
		}
	}
	ctx.pos = next
	return ctx.data[start:lineEnd:lineEnd]
}

func parseAttribute(line []byte) attribute {
	if i := bytes.Index(line, []byte(": ")); i >= 0 {
		return attribute{name: string(line[:i]), value: string(line[i+2:])}
	}
	return attribute{name: string(line)}
}
