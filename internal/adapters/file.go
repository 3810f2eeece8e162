package adapters

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"product-import-service/internal/clients"
	"product-import-service/internal/models"
)

// File formats understood by the file adapter
const (
	FormatCSV  = "csv"
	FormatXML  = "xml"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

var (
	xlsxMagic     = []byte("PK\x03\x04")
	imageColumnRe = regexp.MustCompile(`^(image|image_src|image_url|photo|picture)_?\d+$`)
	headerCleanRe = regexp.MustCompile(`[^a-z0-9_.]+`)
)

// xmlRecordElements are element names that hold one product in common feeds
var xmlRecordElements = map[string]bool{
	"product": true, "item": true, "entry": true, "offer": true, "record": true, "produit": true, "article": true,
}

// FileAdapter parses uploaded or inline delimited, markup, structured-text
// and spreadsheet files (csv, xml, json, xlsx). Remote feeds are downloaded
// through the collector.
type FileAdapter struct {
	collector clients.Collector
	aliases   fieldAliases
}

// NewFileAdapter creates a new file adapter
func NewFileAdapter(collector clients.Collector) *FileAdapter {
	return &FileAdapter{
		collector: collector,
		aliases: extendAliases(fieldAliases{
			Title:          []string{"product_name", "nom", "titre", "libelle"},
			Description:    []string{"product_description", "descriptif"},
			Price:          []string{"variant_price", "prix", "sale_price", "price_eur"},
			CompareAtPrice: []string{"variant_compare_at_price", "prix_barre"},
			SKU:            []string{"variant_sku", "mpn", "reference"},
			Barcode:        []string{"variant_barcode"},
			Images:         []string{"images", "image_urls", "image_link", "additional_image_link", "image_src", "image"},
			Category:       []string{"google_product_category", "categorie", "catégorie", "type"},
			Stock:          []string{"variant_inventory_qty", "quantite"},
			Weight:         []string{"variant_grams", "shipping_weight"},
			WeightUnit:     []string{"variant_weight_unit"},
			SourceID:       []string{"handle"},
		}),
	}
}

func (a *FileAdapter) Name() string {
	return "file"
}

// Extract parses the file attached to the request, its inline data, or the
// feed document its URL points at.
func (a *FileAdapter) Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error) {
	var (
		records []models.RawRecord
		err     error
		kind    = models.ExtractionManual
	)

	switch {
	case req.File != nil && len(req.File.Content) > 0:
		format := DetectFormat(req.Options.Format, req.File.Name, req.File.ContentType, req.File.Content, req.Source)
		records, err = ParseFile(format, req.File.Content)
	case req.Data != nil:
		records, err = a.parseData(req)
	default:
		if err := requireURL(req); err != nil {
			return nil, err
		}
		page, fetchErr := a.collector.FetchPage(ctx, req.URL)
		if fetchErr != nil {
			return nil, fetchErr
		}
		content := []byte(page.HTML)
		format := DetectFormat(req.Options.Format, req.URL, "", content, req.Source)
		records, err = ParseFile(format, content)
		kind = models.ExtractionAPI
	}
	if err != nil {
		return nil, err
	}

	ApplyFieldMapping(records, req.Options.FieldMapping)
	return TagRecords(records, kind), nil
}

func (a *FileAdapter) parseData(req *models.ImportRequest) ([]models.RawRecord, error) {
	text, isText := req.Data.(string)
	if !isText {
		return RecordsFromData(req.Data)
	}
	format := DetectFormat(req.Options.Format, "", "", []byte(text), req.Source)
	return ParseFile(format, []byte(text))
}

func (a *FileAdapter) Normalize(raw models.RawRecord, opts NormalizeOptions) (*models.NormalizedProduct, error) {
	return mapProduct(raw, opts, a.aliases, RecordKind(raw, models.ExtractionManual))
}

// DetectFormat picks the file format from, in order, the explicit format
// option, the file extension, the content type, the content shape and
// finally the declared source.
func DetectFormat(explicit, name, contentType string, content []byte, source models.SourceType) string {
	switch f := strings.ToLower(strings.TrimSpace(explicit)); f {
	case FormatCSV, FormatXML, FormatJSON, FormatXLSX:
		return f
	}

	switch strings.ToLower(filepath.Ext(stripQuery(name))) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	case ".xml", ".rss":
		return FormatXML
	case ".json":
		return FormatJSON
	case ".xlsx", ".xlsm":
		return FormatXLSX
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "spreadsheetml"):
		return FormatXLSX
	case strings.Contains(ct, "json"):
		return FormatJSON
	case strings.Contains(ct, "xml"):
		return FormatXML
	case strings.Contains(ct, "csv"):
		return FormatCSV
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")))
	switch {
	case bytes.HasPrefix(content, xlsxMagic):
		return FormatXLSX
	case bytes.HasPrefix(trimmed, []byte("<")):
		return FormatXML
	case bytes.HasPrefix(trimmed, []byte("{")), bytes.HasPrefix(trimmed, []byte("[")):
		return FormatJSON
	}

	if source.IsFile() {
		return string(source)
	}
	return FormatCSV
}

func stripQuery(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		return name[:i]
	}
	return name
}

// ParseFile parses file content in the given format into raw records
func ParseFile(format string, content []byte) ([]models.RawRecord, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(content)
	case FormatXML:
		return ParseXML(content)
	case FormatJSON:
		return RecordsFromData(content)
	case FormatXLSX:
		return ParseXLSX(content)
	}
	return nil, models.NewValidationError("format", fmt.Sprintf("unsupported file format %q", format))
}

// ParseCSV parses delimited text with a header row. The delimiter is
// detected from the header. Rows whose column count differs from the
// header become malformed records.
func ParseCSV(content []byte) ([]models.RawRecord, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = detectDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, models.NewValidationError("file", "file is empty")
		}
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	headers := normalizeHeaders(header)

	var records []models.RawRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				records = append(records, Malformed(fmt.Sprintf("line %d: %v", parseErr.StartLine, parseErr.Err)))
				continue
			}
			return nil, fmt.Errorf("error reading line %d: %w", line, err)
		}
		if isBlankRow(row) {
			continue
		}
		if len(row) != len(headers) {
			records = append(records, Malformed(fmt.Sprintf("line %d: expected %d columns, got %d", line, len(headers), len(row))))
			continue
		}
		records = append(records, rowRecord(headers, row))
	}
	return records, nil
}

func detectDelimiter(content []byte) rune {
	firstLine := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		firstLine = content[:i]
	}
	best, bestCount := ',', 0
	for _, candidate := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(firstLine, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

// normalizeHeaders lowercases headers and joins words with underscores so
// "Image URLs" matches the image_urls alias.
func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), " *")
		h = strings.Trim(headerCleanRe.ReplaceAllString(h, "_"), "_")
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = h
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// rowRecord builds a record from a tabular row. Numbered image columns
// (image_1, image_2...) are gathered into "images".
func rowRecord(headers, row []string) models.RawRecord {
	record := models.RawRecord{}
	var numbered []string
	for i, value := range row {
		if i >= len(headers) {
			break
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if imageColumnRe.MatchString(headers[i]) {
			numbered = append(numbered, headers[i])
		}
		record[headers[i]] = value
	}
	if _, ok := record["images"]; !ok && len(numbered) > 0 {
		sort.Strings(numbered)
		images := make([]interface{}, 0, len(numbered))
		for _, col := range numbered {
			images = append(images, record[col])
		}
		record["images"] = images
	}
	return record
}

// ParseXLSX reads the first sheet of a workbook, or the one named "products"
func ParseXLSX(content []byte) ([]models.RawRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, models.NewValidationError("file", "no sheets found in Excel file")
	}
	sheetName := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, "products") || strings.EqualFold(name, "produits") {
			sheetName = name
			break
		}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.NewValidationError("file", "file is empty")
	}

	headers := normalizeHeaders(rows[0])
	var records []models.RawRecord
	for rowIdx, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		if len(row) > len(headers) && !isBlankRow(row[len(headers):]) {
			records = append(records, Malformed(fmt.Sprintf("row %d: %d cells for %d columns", rowIdx+2, len(row), len(headers))))
			continue
		}
		records = append(records, rowRecord(headers, row))
	}
	return records, nil
}

// xmlNode is a generic element tree used to turn feeds into records
type xmlNode struct {
	name     string
	attrs    map[string]string
	children []*xmlNode
	text     strings.Builder
}

// ParseXML parses a product feed. Records are the children of the first
// element holding product-like elements (product, item, entry, offer...),
// falling back to the root's repeated children.
func ParseXML(content []byte) ([]models.RawRecord, error) {
	root, err := parseXMLTree(content)
	if err != nil {
		return nil, fmt.Errorf("invalid XML: %w", err)
	}

	var nodes []*xmlNode
	if xmlRecordElements[root.name] {
		nodes = []*xmlNode{root}
	} else if container := findRecordContainer(root); container != nil {
		for _, child := range container.children {
			if xmlRecordElements[child.name] {
				nodes = append(nodes, child)
			}
		}
	} else {
		nodes = root.children
	}
	if len(nodes) == 0 {
		nodes = []*xmlNode{root}
	}

	records := make([]models.RawRecord, 0, len(nodes))
	for _, n := range nodes {
		value := n.toValue()
		m, ok := value.(map[string]interface{})
		if !ok {
			records = append(records, Malformed(fmt.Sprintf("element <%s> has no fields", n.name)))
			continue
		}
		records = append(records, m)
	}
	return records, nil
}

func parseXMLTree(content []byte) (*xmlNode, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.Strict = false
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		stack []*xmlNode
		root  *xmlNode
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: strings.ToLower(t.Name.Local), attrs: map[string]string{}}
			for _, attr := range t.Attr {
				n.attrs[strings.ToLower(attr.Name.Local)] = attr.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

func findRecordContainer(n *xmlNode) *xmlNode {
	for _, child := range n.children {
		if xmlRecordElements[child.name] {
			return n
		}
	}
	for _, child := range n.children {
		if found := findRecordContainer(child); found != nil {
			return found
		}
	}
	return nil
}

// toValue converts an element into a string (leaf) or an object. Repeated
// child names become lists; attributes become fields unless a child element
// uses the same name.
func (n *xmlNode) toValue() interface{} {
	text := strings.TrimSpace(n.text.String())
	if len(n.children) == 0 && len(n.attrs) == 0 {
		return text
	}

	out := map[string]interface{}{}
	for _, child := range n.children {
		value := child.toValue()
		existing, found := out[child.name]
		switch {
		case !found:
			out[child.name] = value
		default:
			if list, isList := existing.([]interface{}); isList {
				out[child.name] = append(list, value)
			} else {
				out[child.name] = []interface{}{existing, value}
			}
		}
	}
	for k, v := range n.attrs {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	if text != "" {
		if _, taken := out["value"]; !taken && len(n.children) == 0 {
			out["value"] = text
		}
	}
	// Collapse <images><image>a</image><image>b</image></images>
	if len(out) == 1 && len(n.attrs) == 0 {
		for name, v := range out {
			if list, isList := v.([]interface{}); isList {
				return list
			}
			if n.name == name+"s" {
				return []interface{}{v}
			}
		}
	}
	return out
}

// ApplyFieldMapping copies mapped source columns onto canonical field names.
// The mapping is keyed by source column; headers are matched the way they
// are normalized during parsing.
func ApplyFieldMapping(records []models.RawRecord, mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	normalized := make(map[string]string, len(mapping))
	for column, field := range mapping {
		column = normalizeHeaders([]string{column})[0]
		if field = strings.TrimSpace(field); field != "" {
			normalized[column] = field
		}
	}
	for _, record := range records {
		if record == nil {
			continue
		}
		if _, malformed := record[MalformedKey]; malformed {
			continue
		}
		for column, field := range normalized {
			value, ok := record[column]
			if !ok || column == field {
				continue
			}
			record[field] = value
		}
	}
}
