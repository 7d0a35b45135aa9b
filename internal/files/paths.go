// Package files knows where things live on disk: output folders per shop and
// publisher, the saved publisher lists, the cached feed and the workbook.
package files

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"book_spider/internal/errs"
	"book_spider/internal/models"
)

const MaxDirNameLength = 255

var forbidden = regexp.MustCompile(`[<>:"/\\|?*]`)

// NormalizeDirName makes name usable as a Windows folder name.
func NormalizeDirName(name string) string {
	name = forbidden.ReplaceAllString(name, "")
	name = strings.TrimSuffix(name, ".")
	if r := []rune(name); len(r) > MaxDirNameLength {
		name = string(r[:MaxDirNameLength])
	}
	return name
}

// SiteName cuts the domain suffix: "my-shop.ru" -> "my-shop".
func SiteName(shop string) string {
	if i := strings.Index(shop, "."); i > 0 {
		return shop[:i]
	}
	return shop
}

func PublishersPath(dataDir, shop string) string {
	return filepath.Join(dataDir, SiteName(shop)+"_publishers.txt")
}

func FeedPath(dataDir, shop string) string {
	return filepath.Join(dataDir, SiteName(shop)+".xml")
}

func ShopDir(outputDir, shop string) string {
	return filepath.Join(outputDir, shop)
}

// Output is the folder layout of one (shop, publisher) job.
type Output struct {
	Dir           string
	Workbook      string
	Images        string
	MissingImages string
}

func OutputFor(outputDir, shop, publisher string) Output {
	publisher = strings.TrimSpace(publisher)
	dir := filepath.Join(ShopDir(outputDir, shop), NormalizeDirName(shop+"-"+publisher))
	return Output{
		Dir:           dir,
		Workbook:      filepath.Join(dir, "content information "+NormalizeDirName(publisher)+".xlsx"),
		Images:        filepath.Join(dir, "Images"),
		MissingImages: filepath.Join(dir, "missing images"),
	}
}

// Prepare creates the folders and starts a fresh workbook with the header row.
func (o Output) Prepare() error {
	for _, dir := range []string{o.Dir, o.Images, o.MissingImages} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.LocalIO(dir, err)
		}
	}
	if err := os.Remove(o.Workbook); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.LocalIO(o.Workbook, err)
	}
	return NewWorkbook(o.Workbook).Create()
}

// ReadPublishers loads the saved list; a shop never collected yields nothing.
func ReadPublishers(dataDir, shop string) ([]models.PublisherInfo, error) {
	path := PublishersPath(dataDir, shop)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.LocalIO(path, err)
	}
	defer f.Close()

	var list []models.PublisherInfo
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		p := models.ParsePublisherLine(scanner.Text())
		if p.Name != "" {
			list = append(list, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.LocalIO(path, err)
	}
	return list, nil
}

func WritePublishers(dataDir, shop string, list []models.PublisherInfo) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return errs.LocalIO(dataDir, err)
	}
	lines := make([]string, 0, len(list))
	for _, p := range list {
		lines = append(lines, p.Line())
	}
	path := PublishersPath(dataDir, shop)
	return errs.LocalIO(path, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
}
