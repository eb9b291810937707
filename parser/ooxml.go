package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// ooxmlPackage indexes the parts of an Office Open XML zip container.
type ooxmlPackage struct {
	r     *zip.ReadCloser
	parts map[string]*zip.File
}

func openOOXML(p string) (*ooxmlPackage, error) {
	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	parts := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		parts[f.Name] = f
	}
	return &ooxmlPackage{r: r, parts: parts}, nil
}

func (o *ooxmlPackage) Close() error { return o.r.Close() }

// read returns the content of a part, or an error if it is missing.
func (o *ooxmlPackage) read(name string) ([]byte, error) {
	f := o.parts[name]
	if f == nil {
		return nil, fmt.Errorf("part %s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ooxmlRelationships represents a .rels part.
type ooxmlRelationships struct {
	XMLName xml.Name            `xml:"Relationships"`
	Rels    []ooxmlRelationship `xml:"Relationship"`
}

type ooxmlRelationship struct {
	ID     string `xml:"Id,attr"`
	Target string `xml:"Target,attr"`
	Type   string `xml:"Type,attr"`
}

// rels reads the relationships of a part and returns rId -> resolved part
// name. Targets are resolved against the directory of the owning part.
func (o *ooxmlPackage) rels(owner string) map[string]string {
	dir, file := path.Split(owner)
	data, err := o.read(dir + "_rels/" + file + ".rels")
	if err != nil {
		return nil
	}
	var rels ooxmlRelationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil
	}
	result := make(map[string]string, len(rels.Rels))
	for _, rel := range rels.Rels {
		target := rel.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join(dir, target)
		}
		result[rel.ID] = path.Clean(target)
	}
	return result
}
