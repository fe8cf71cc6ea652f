/*
Copyright 2022. projectsveltos.io. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package imagetag parses Rubin Science Platform image tags into sortable,
// displayable structures. The tag grammar and ordering rules are specified
// in SQR-059; this package is a direct Go port of that grammar.
package imagetag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DockerDefaultTag is the tag Docker and Kubernetes assume when none is
// given.
const DockerDefaultTag = "latest"

// Regular expression fragments used to build the parse table below.
const (
	reRelease      = `r(?P<major>\d+)_(?P<minor>\d+)_(?P<patch>\d+)`
	reCandidate    = `r(?P<major>\d+)_(?P<minor>\d+)_(?P<patch>\d+)_(?P<pre>rc\d+)`
	reWeekly       = `w_(?P<year>\d+)_(?P<week>\d+)`
	reDaily        = `d_(?P<year>\d+)_(?P<month>\d+)_(?P<day>\d+)`
	reExperimental = `exp`
	reCycle        = `_c(?P<cycle>\d+)\.(?P<cbuild>\d+)`
	reRSP          = `_rsp(?P<rspbuild>\d+)`
	reUnknownCycle = `(?P<tag>.*)_c(?P<cycle>\d+)`
	reRest         = `_(?P<rest>.*)`
)

type tagRule struct {
	imageType Type
	pattern   *regexp.Regexp
}

// parseTable is matched top to bottom; order matters. Release candidates
// must precede releases (or they'd parse as a release with a non-empty
// "rest"), and every type with an optional RSP build tag must try the
// variant that includes it before the variant that doesn't.
var parseTable = buildParseTable()

func buildParseTable() []tagRule {
	compile := func(t Type, pattern string) tagRule {
		return tagRule{imageType: t, pattern: regexp.MustCompile("^" + pattern + "$")}
	}
	return []tagRule{
		compile(Candidate, reCandidate+reRSP+reCycle+reRest),
		compile(Candidate, reCandidate+reRSP+reCycle),
		compile(Candidate, reCandidate+reRSP+reRest),
		compile(Candidate, reCandidate+reRSP),
		compile(Candidate, reCandidate+reCycle+reRest),
		compile(Candidate, reCandidate+reCycle),
		compile(Candidate, reCandidate+reRest),
		compile(Candidate, reCandidate),
		compile(Release, reRelease+reRSP+reCycle+reRest),
		compile(Release, reRelease+reRSP+reCycle),
		compile(Release, reRelease+reRSP+reRest),
		compile(Release, reRelease+reRSP),
		compile(Release, reRelease+reCycle+reRest),
		compile(Release, reRelease+reCycle),
		compile(Release, reRelease+reRest),
		compile(Release, reRelease),
		compile(Release, `r(?P<major>\d\d)(?P<minor>\d)`), // r170, obsolete two-part release
		compile(Weekly, reWeekly+reRSP+reCycle+reRest),
		compile(Weekly, reWeekly+reRSP+reCycle),
		compile(Weekly, reWeekly+reRSP+reRest),
		compile(Weekly, reWeekly+reRSP),
		compile(Weekly, reWeekly+reCycle+reRest),
		compile(Weekly, reWeekly+reCycle),
		compile(Weekly, reWeekly+reRest),
		compile(Weekly, reWeekly),
		compile(Daily, reDaily+reRSP+reCycle+reRest),
		compile(Daily, reDaily+reRSP+reCycle),
		compile(Daily, reDaily+reRSP+reRest),
		compile(Daily, reDaily+reRSP),
		compile(Daily, reDaily+reCycle+reRest),
		compile(Daily, reDaily+reCycle),
		compile(Daily, reDaily+reRest),
		compile(Daily, reDaily),
		compile(Experimental, reExperimental+reRest),
		compile(Unknown, reUnknownCycle),
	}
}

var unknownCycleRE = regexp.MustCompile("^" + reUnknownCycle + "$")
var restCleanRE = regexp.MustCompile(`[^\w.]+`)

// Tag is a parsed, sortable, displayable Rubin Science Platform image tag.
type Tag struct {
	Raw             string
	Type            Type
	Version         *semver.Version
	RSPBuildVersion *int
	Cycle           *int
	DisplayName     string
	Date            *time.Time
}

// Alias builds the Tag for a name the prepuller configuration has marked
// as an alias (e.g. "recommended"), rather than parsing it as a normal
// release-series tag.
func Alias(tag string) Tag {
	display := titleCase(strings.ReplaceAll(tag, "_", " "))
	var cycle *int
	if m := matchNamed(unknownCycleRE, tag); m != nil {
		c, _ := strconv.Atoi(m["cycle"])
		cycle = &c
		display = titleCase(strings.ReplaceAll(m["tag"], "_", " "))
		display += fmt.Sprintf(" (SAL Cycle %s)", m["cycle"])
	}
	return Tag{
		Raw:         tag,
		Type:        Alias,
		Cycle:       cycle,
		DisplayName: display,
	}
}

// FromString parses tag against the grammar defined in SQR-059, in
// priority order. An empty string is treated as DockerDefaultTag. A tag
// that matches nothing recognizable becomes an Unknown tag whose display
// name is the raw tag string.
func FromString(tag string) Tag {
	if tag == "" {
		tag = DockerDefaultTag
	}
	for _, rule := range parseTable {
		m := matchNamed(rule.pattern, tag)
		if m == nil {
			continue
		}
		if parsed, ok := fromMatch(rule.imageType, m, tag); ok {
			return parsed
		}
		// A malformed match (should not happen if the table above is
		// correct) falls through to the next rule rather than panicking.
	}
	return Tag{Raw: tag, Type: Unknown, DisplayName: tag}
}

func matchNamed(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = m[i]
	}
	return out
}

func fromMatch(imageType Type, data map[string]string, tag string) (parsed Tag, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	rest := data["rest"]
	cycleStr := data["cycle"]
	cbuild := data["cbuild"]
	rspBuild := extractRSPBuildVersion(data)

	if imageType == Unknown {
		display := data["tag"]
		if display == "" {
			display = tag
		}
		var cycle *int
		if cycleStr != "" {
			c, err := strconv.Atoi(cycleStr)
			if err != nil {
				return Tag{}, false
			}
			cycle = &c
			display += fmt.Sprintf(" (SAL Cycle %s)", cycleStr)
		}
		return Tag{
			Raw:             tag,
			Type:            imageType,
			RSPBuildVersion: rspBuild,
			Cycle:           cycle,
			DisplayName:     display,
		}, true
	}

	if imageType == Experimental {
		var display string
		var subtag Tag
		if rest != "" {
			subtag = FromString(rest)
			display = fmt.Sprintf("%s %s", imageType, subtag.DisplayName)
		} else {
			display = string(imageType)
		}
		return Tag{
			Raw:             tag,
			Type:            imageType,
			Version:         subtag.Version,
			RSPBuildVersion: subtag.RSPBuildVersion,
			Cycle:           subtag.Cycle,
			DisplayName:     display,
			Date:            subtag.Date,
		}, true
	}

	build := determineBuild(cycleStr, cbuild, rest)
	mini, err := minitag(imageType, data)
	if err != nil {
		return Tag{}, false
	}

	vstr := fmt.Sprintf("%s.%s.%s", mini.major, mini.minor, mini.patch)
	if mini.pre != "" {
		vstr += "-" + mini.pre
	}
	if build != "" {
		vstr += "+" + build
	}
	version, err := semver.NewVersion(vstr)
	if err != nil {
		return Tag{}, false
	}

	display := mini.displayName
	if rspBuild != nil {
		display += fmt.Sprintf(" (RSP Build %d)", *rspBuild)
	}
	var cycle *int
	if cycleStr != "" {
		c, err := strconv.Atoi(cycleStr)
		if err != nil {
			return Tag{}, false
		}
		cycle = &c
		display += fmt.Sprintf(" (SAL Cycle %s, Build %s)", cycleStr, cbuild)
	}
	if rest != "" {
		display += fmt.Sprintf(" [%s]", rest)
	}

	return Tag{
		Raw:             tag,
		Type:            imageType,
		Version:         version,
		RSPBuildVersion: rspBuild,
		Cycle:           cycle,
		DisplayName:     display,
		Date:            calculateDate(data),
	}, true
}

func determineBuild(cycle, cbuild, rest string) string {
	if rest != "" {
		rest = restCleanRE.ReplaceAllString(strings.ReplaceAll(rest, "_", "."), "")
	}
	if cycle != "" {
		if rest != "" {
			return fmt.Sprintf("c%s.%s.%s", cycle, cbuild, rest)
		}
		return fmt.Sprintf("c%s.%s", cycle, cbuild)
	}
	return rest
}

type minitagData struct {
	major, minor, patch, pre, displayName string
}

func minitag(imageType Type, data map[string]string) (minitagData, error) {
	display := string(imageType)
	if imageType == Release || imageType == Candidate {
		major, minor, patch := data["major"], data["minor"], data["patch"]
		if patch == "" {
			patch = "0"
		}
		pre := data["pre"]
		display += fmt.Sprintf(" r%s.%s.%s", major, minor, patch)
		if pre != "" {
			display += "-" + pre
		}
		return minitagData{major: major, minor: minor, patch: patch, pre: pre, displayName: display}, nil
	}

	year := data["year"]
	if year == "" {
		return minitagData{}, fmt.Errorf("no year in tag data")
	}
	var minor, patch string
	if imageType == Weekly {
		minor = data["week"]
		patch = "0"
		display += fmt.Sprintf(" %s_%s", year, minor)
	} else {
		minor = data["month"]
		patch = data["day"]
		display += fmt.Sprintf(" %s_%s_%s", year, minor, patch)
	}
	return minitagData{major: year, minor: minor, patch: patch, displayName: display}, nil
}

// calculateDate derives a creation-date estimate from a weekly or daily
// tag's embedded year/week or year/month/day. Weekly tags are pinned to
// the Thursday of their ISO week, since that's the day RSP weekly builds
// are cut.
func calculateDate(data map[string]string) *time.Time {
	year := data["year"]
	if year == "" {
		return nil
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}
	if week := data["week"]; week != "" {
		w, err := strconv.Atoi(week)
		if err != nil {
			return nil
		}
		t := isoWeekThursday(y, w)
		return &t
	}
	month, day := data["month"], data["day"]
	if month == "" || day == "" {
		return nil
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return nil
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return nil
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

// isoWeekThursday returns the Thursday of ISO week `week` of `year`.
func isoWeekThursday(year, week int) time.Time {
	// ISO 8601: week 1 is the week containing the first Thursday of
	// January, and weeks start on Monday.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	isoWeekday := int(jan4.Weekday())
	if isoWeekday == 0 {
		isoWeekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(isoWeekday - 1))
	return week1Monday.AddDate(0, 0, (week-1)*7+3)
}

func extractRSPBuildVersion(data map[string]string) *int {
	bld, ok := data["rspbuild"]
	if !ok || bld == "" {
		return nil
	}
	v, err := strconv.Atoi(bld)
	if err != nil {
		return nil
	}
	return &v
}

var titler = cases.Title(language.Und)

func titleCase(s string) string {
	return titler.String(s)
}
