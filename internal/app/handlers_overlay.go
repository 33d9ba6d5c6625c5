package app

import (
	"fmt"
	"html/template"
	"net/http"
)

// GET /overlay/{room} -> transparent, view-only comment layer for capture
// tools. It follows the room's watch page and never reports a clock.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html lang="ja">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>DanmakuFlow Overlay - %s</title>
  <style>
    html, body { margin:0; padding:0; background:transparent; height:100%%; overflow:hidden; }
%s
  </style>
</head>
<body>
  <div class="layer" id="layer"></div>
  <script>%s</script>
  <script>
  (function(){
    const layer = document.getElementById('layer');
    const dm = danmakuLayer(layer);
    function fit(){
      const sz = dm.size();
      layer.style.transform = 'scale(' + (window.innerWidth / sz.w) + ',' + (window.innerHeight / sz.h) + ')';
    }
    layer.addEventListener('layersize', fit);
    window.addEventListener('resize', fit);
    dm.connect("%s", {});
    fit();
  })();
  </script>
</body>
</html>`,
		template.HTMLEscapeString(rm.ID),
		overlayCSS,
		overlayScript,
		template.JSEscapeString(rm.ID),
	)
}
