package studentsbook

import (
	"strings"
	"unicode"
)

var cyrToLat = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "shch", 'ъ': "",
	'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// toLatin transliterates Russian letters and keeps everything else.
func toLatin(s string) string {
	var b strings.Builder
	for _, r := range s {
		lat, ok := cyrToLat[unicode.ToLower(r)]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if unicode.IsUpper(r) && lat != "" {
			lat = strings.ToUpper(lat[:1]) + lat[1:]
		}
		b.WriteString(lat)
	}
	return b.String()
}

// authorSlug is the URL prefix some product pages carry: "Иванов И.И." ->
// "ivanov_i_i_".
func authorSlug(author string) string {
	slug := toLatin(strings.TrimSpace(author))
	slug = strings.NewReplacer(".", "_", " ", "_").Replace(slug)
	return strings.ToLower(slug)
}
