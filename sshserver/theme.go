package sshserver

import (
	"sort"
	"strconv"

	"pkt.systems/conspool/schema"
)

type rgb struct {
	r int
	g int
	b int
}

type tuiTheme struct {
	Name        string
	TitleBarBG  rgb
	TitleBarFG  rgb
	TitleBoldFG rgb
	NormalFG    rgb
	ErrorFG     rgb
	SystemFG    rgb
	InputFG     rgb
	LinkFG      rgb
	FoldFG      rgb
	NoticeFG    rgb
	PromptFG    rgb
	SpinnerFG   rgb
}

const (
	ansiReset     = "\x1b[0m"
	ansiBold      = "\x1b[1m"
	ansiDim       = "\x1b[2m"
	ansiItalic    = "\x1b[3m"
	ansiUnderline = "\x1b[4m"
)

const defaultThemeName = "outrun"

var tuiThemes = map[string]tuiTheme{
	"outrun": {
		Name:        "outrun",
		TitleBarBG:  rgb{r: 32, g: 8, b: 56},
		TitleBarFG:  rgb{r: 154, g: 163, b: 178},
		TitleBoldFG: rgb{r: 0, g: 229, b: 255},
		NormalFG:    rgb{r: 240, g: 241, b: 255},
		ErrorFG:     rgb{r: 255, g: 107, b: 107},
		SystemFG:    rgb{r: 154, g: 163, b: 178},
		InputFG:     rgb{r: 255, g: 255, b: 255},
		LinkFG:      rgb{r: 112, g: 214, b: 255},
		FoldFG:      rgb{r: 110, g: 136, b: 255},
		NoticeFG:    rgb{r: 255, g: 91, b: 189},
		PromptFG:    rgb{r: 255, g: 255, b: 255},
		SpinnerFG:   rgb{r: 110, g: 136, b: 255},
	},
	"gruvbox": {
		Name:        "gruvbox",
		TitleBarBG:  rgb{r: 60, g: 56, b: 54},
		TitleBarFG:  rgb{r: 146, g: 131, b: 116},
		TitleBoldFG: rgb{r: 250, g: 189, b: 47},
		NormalFG:    rgb{r: 235, g: 219, b: 178},
		ErrorFG:     rgb{r: 251, g: 73, b: 52},
		SystemFG:    rgb{r: 146, g: 131, b: 116},
		InputFG:     rgb{r: 255, g: 255, b: 255},
		LinkFG:      rgb{r: 131, g: 165, b: 152},
		FoldFG:      rgb{r: 214, g: 93, b: 14},
		NoticeFG:    rgb{r: 211, g: 134, b: 155},
		PromptFG:    rgb{r: 255, g: 255, b: 255},
		SpinnerFG:   rgb{r: 131, g: 165, b: 152},
	},
	"tokyo-midnight": {
		Name:        "tokyo-midnight",
		TitleBarBG:  rgb{r: 26, g: 27, b: 38},
		TitleBarFG:  rgb{r: 127, g: 133, b: 163},
		TitleBoldFG: rgb{r: 122, g: 162, b: 247},
		NormalFG:    rgb{r: 192, g: 202, b: 245},
		ErrorFG:     rgb{r: 247, g: 118, b: 142},
		SystemFG:    rgb{r: 127, g: 133, b: 163},
		InputFG:     rgb{r: 255, g: 255, b: 255},
		LinkFG:      rgb{r: 125, g: 207, b: 255},
		FoldFG:      rgb{r: 187, g: 154, b: 247},
		NoticeFG:    rgb{r: 187, g: 154, b: 247},
		PromptFG:    rgb{r: 255, g: 255, b: 255},
		SpinnerFG:   rgb{r: 122, g: 162, b: 247},
	},
}

func themeForName(name string) tuiTheme {
	if name == "" {
		name = defaultThemeName
	}
	if theme, ok := tuiThemes[name]; ok {
		return theme
	}
	return tuiThemes[defaultThemeName]
}

func lookupTheme(name string) (tuiTheme, bool) {
	theme, ok := tuiThemes[name]
	return theme, ok
}

func themeNames() []string {
	names := make([]string, 0, len(tuiThemes))
	for name := range tuiThemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func kindStyle(kind schema.ContentKind, theme tuiTheme) string {
	switch kind {
	case schema.KindError:
		return ansiBold + ansiFgRGB(theme.ErrorFG)
	case schema.KindSystem:
		return ansiDim + ansiItalic + ansiFgRGB(theme.SystemFG)
	case schema.KindUserInput:
		return ansiBold + ansiFgRGB(theme.InputFG)
	default:
		return ansiFgRGB(theme.NormalFG)
	}
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
