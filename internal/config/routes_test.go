package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRoutes(t *testing.T) {
	path := writeTemp(t, `
routes:
  - vehicle_id: B1
    route_id: R7
    capacity: 50
    waypoints:
      - { lon: 79.86, lat: 6.93 }
      - { lon: 79.87, lat: 6.94 }
      - { lon: 79.88, lat: 6.95 }
`)
	routes, err := LoadRoutes(path)
	if err != nil {
		t.Fatalf("LoadRoutes: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("got %d routes, want 1", len(routes))
	}
	r := routes[0]
	if r.VehicleID != "B1" || r.RouteID != "R7" || r.Capacity != 50 || len(r.Waypoints) != 3 {
		t.Fatalf("unexpected route: %+v", r)
	}
}

func TestLoadRoutesRejectsBadPolyline(t *testing.T) {
	cases := map[string]string{
		"single waypoint": `
routes:
  - vehicle_id: B1
    waypoints:
      - { lon: 79.86, lat: 6.93 }
`,
		"latitude out of range": `
routes:
  - vehicle_id: B1
    waypoints:
      - { lon: 79.86, lat: 96.93 }
      - { lon: 79.87, lat: 6.94 }
`,
		"missing vehicle id": `
routes:
  - waypoints:
      - { lon: 79.86, lat: 6.93 }
      - { lon: 79.87, lat: 6.94 }
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadRoutes(writeTemp(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
