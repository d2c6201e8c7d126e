package export

import (
	"bufio"
	"fmt"
	"image/color"
	"os"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/mdepdi/be-fast-cablo/pkg/aggregate"
	"github.com/mdepdi/be-fast-cablo/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-kml/v3"
)

var (
	colorOverlapped = color.RGBA{G: 0xaa, A: 0xff}
	colorNewBuild   = color.RGBA{R: 0xff, A: 0xff}
	colorFE         = color.RGBA{B: 0xff, A: 0xff}
	colorNE         = color.RGBA{R: 0xff, G: 0xff, A: 0xff}
)

type kmlStyles struct {
	lines  map[string]*kml.SharedElement
	fe, ne *kml.SharedElement
}

func newKMLStyles() kmlStyles {
	return kmlStyles{
		lines: map[string]*kml.SharedElement{
			pkg.LABEL_OVERLAPPED: kml.SharedStyle(pkg.LABEL_OVERLAPPED, kml.LineStyle(kml.Color(colorOverlapped), kml.Width(4))),
			pkg.LABEL_NEW_BUILD:  kml.SharedStyle(pkg.LABEL_NEW_BUILD, kml.LineStyle(kml.Color(colorNewBuild), kml.Width(4))),
		},
		fe: kml.SharedStyle("fe", kml.IconStyle(kml.Color(colorFE), kml.Scale(1.1))),
		ne: kml.SharedStyle("ne", kml.IconStyle(kml.Color(colorNE), kml.Scale(1.1))),
	}
}

func (s kmlStyles) elements() []kml.Element {
	return []kml.Element{s.lines[pkg.LABEL_OVERLAPPED], s.lines[pkg.LABEL_NEW_BUILD], s.fe, s.ne}
}

func kmlCoords(ls orb.LineString) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(ls))
	for i, p := range ls {
		coords[i] = kml.Coordinate{Lon: p[0], Lat: p[1]}
	}
	return coords
}

func pointPlacemark(name string, style *kml.SharedElement, c geo.Coordinate) kml.Element {
	c = c.To(geo.WGS84)
	return kml.Placemark(
		kml.Name(name),
		kml.StyleURL(style.URL()),
		kml.Point(kml.Coordinates(kml.Coordinate{Lon: c.GetLon(), Lat: c.GetLat()})),
	)
}

func lineString(ls orb.LineString) kml.Element {
	return kml.LineString(kml.Tessellate(true), kml.Coordinates(kmlCoords(ls)...))
}

func linePlacemark(g aggregate.DissolvedGroup, styles kmlStyles) (kml.Element, bool) {
	wgs := g.Geometry.To(geo.WGS84)
	if wgs.IsEmpty() {
		return nil, false
	}
	var geometry kml.Element
	if ls, ok := wgs.Line(); ok {
		geometry = lineString(ls)
	} else {
		parts := make([]kml.Element, 0, wgs.NumParts())
		for _, part := range wgs.Parts() {
			parts = append(parts, lineString(part))
		}
		geometry = kml.MultiGeometry(parts...)
	}
	children := []kml.Element{
		kml.Name(fmt.Sprintf("%s %s - %s", g.Label, g.FEName, g.NEName)),
		kml.Description(fmt.Sprintf("type=%s distance_m=%.2f segments=%d", g.Type, g.TotalDistanceM, g.SegmentCount)),
	}
	if style, ok := styles.lines[g.Label]; ok {
		children = append(children, kml.StyleURL(style.URL()))
	}
	return kml.Placemark(append(children, geometry)...), true
}

// buildKML lays groups out one folder per FE/NE pair, holding both end points and the
// overlapped and new-build lines of that pair.
func buildKML(name string, groups []aggregate.DissolvedGroup) *kml.KMLElement {
	styles := newKMLStyles()

	type folder struct {
		name     string
		children []kml.Element
	}
	folders := []*folder{}
	byPair := make(map[[2]string]*folder)
	for _, g := range groups {
		key := [2]string{g.FEName, g.NEName}
		f, ok := byPair[key]
		if !ok {
			f = &folder{
				name: g.FEName + " - " + g.NEName,
				children: []kml.Element{
					pointPlacemark(g.FEName, styles.fe, g.FE),
					pointPlacemark(g.NEName, styles.ne, g.NE),
				},
			}
			byPair[key] = f
			folders = append(folders, f)
		}
		if pm, ok := linePlacemark(g, styles); ok {
			f.children = append(f.children, pm)
		}
	}

	doc := []kml.Element{kml.Name(name)}
	doc = append(doc, styles.elements()...)
	for _, f := range folders {
		doc = append(doc, kml.Folder(append([]kml.Element{kml.Name(f.name)}, f.children...)...))
	}
	return kml.KML(kml.Document(doc...))
}

func WriteKML(path, name string, groups []aggregate.DissolvedGroup) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := buildKML(name, groups).WriteIndent(bw, "", "  "); err != nil {
		return err
	}
	return bw.Flush()
}
