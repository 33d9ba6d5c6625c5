package app

import (
	"fmt"
	"html/template"
	"net/http"
)

// GET /watch/{room} -> video player with the comment layer on top. The page
// reports its playback clock and events back over the websocket; the server
// drives the layer.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	_, videoURL := rm.video()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html lang="ja">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>DanmakuFlow Watch - %s</title>
  <style>
    :root { color-scheme: dark; }
    html, body { height:100%%; margin:0; background:#000; }
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Noto Sans JP', 'Hiragino Kaku Gothic ProN', Meiryo, Arial, sans-serif; color:#fff; }
    .stage { position:fixed; inset:0 0 48px 0; display:grid; place-items:center; }
    .frame { position:relative; }
    #video { display:block; max-width:100vw; max-height:calc(100vh - 48px); background:#000; }
    .bar { position:fixed; inset:auto 0 0 0; height:48px; display:flex; gap:12px; align-items:center; padding:0 12px; background:rgba(0,0,0,.6); }
    .spacer { flex:1; }
    .hint { font-size:12px; opacity:.85; }
    a { color:#9cf; }
%s
  </style>
</head>
<body>
  <div class="stage">
    <div class="frame" id="frame">
      <video id="video" controls playsinline></video>
      <div class="layer" id="layer"></div>
    </div>
  </div>
  <div class="bar">
    <input type="file" id="file" accept="video/*" />
    <button id="toggleOverlay">コメント表示/非表示 (H)</button>
    <button id="fullscreen">全画面 (F)</button>
    <div class="spacer"></div>
    <span id="clock" class="hint">0:00</span>
    <a href="/post/%s" target="_blank">投稿ページ</a>
    <a href="/admin/%s" target="_blank">管理パネル</a>
  </div>
  <script>%s</script>
  <script>
  (function(){
    const roomId = "%s";
    const video = document.getElementById('video');
    const layer = document.getElementById('layer');
    const frame = document.getElementById('frame');
    const file = document.getElementById('file');
    const clock = document.getElementById('clock');
    const dm = danmakuLayer(layer);
    let objectURL = '';
    let overlayVisible = true;

    function load(url){
      if (objectURL) { URL.revokeObjectURL(objectURL); objectURL = ''; }
      if (url) video.src = url; else video.removeAttribute('src');
    }
    load("%s");

    const conn = dm.connect(roomId, {
      open(){ report(); reportSize(); },
      video(msg){ load(msg.url || ''); }
    });

    function fmt(t){
      t = Math.max(0, Math.floor(t || 0));
      const h = Math.floor(t / 3600), m = Math.floor(t %% 3600 / 60), s = t %% 60;
      const ss = String(s).padStart(2, '0');
      return h ? h + ':' + String(m).padStart(2, '0') + ':' + ss : m + ':' + ss;
    }
    function report(){
      conn.send({type:'clock', time: video.currentTime || 0, paused: video.paused});
      clock.textContent = fmt(video.currentTime);
    }
    function reportSize(){
      const w = Math.round(video.clientWidth), h = Math.round(video.clientHeight);
      if (w > 0 && h > 0) conn.send({type:'resize', w, h});
    }
    setInterval(report, 250);
    for (const name of ['pause', 'play', 'seeking', 'seeked']) {
      video.addEventListener(name, ()=> conn.send({type:'event', name, time: video.currentTime || 0, paused: video.paused}));
    }
    new ResizeObserver(reportSize).observe(video);
    layer.addEventListener('layersize', (ev)=>{
      const w = video.clientWidth || ev.detail.w;
      const scale = ev.detail.w ? w / ev.detail.w : 1;
      layer.style.transform = 'scale(' + scale + ')';
    });

    file.addEventListener('change', ()=>{
      const f = file.files && file.files[0];
      if (!f) return;
      load('');
      objectURL = URL.createObjectURL(f);
      video.src = objectURL;
    });

    function toggleOverlay(){
      overlayVisible = !overlayVisible;
      layer.style.visibility = overlayVisible ? 'visible' : 'hidden';
    }
    function toggleFullscreen(){
      if (!document.fullscreenElement) { frame.requestFullscreen && frame.requestFullscreen(); }
      else { document.exitFullscreen && document.exitFullscreen(); }
    }
    document.addEventListener('keydown', (e)=>{
      if (e.target && e.target.tagName === 'INPUT') return;
      if (e.key.toLowerCase() === 'f') toggleFullscreen();
      else if (e.key.toLowerCase() === 'h') toggleOverlay();
    });
    document.getElementById('fullscreen').addEventListener('click', toggleFullscreen);
    document.getElementById('toggleOverlay').addEventListener('click', toggleOverlay);
  })();
  </script>
</body>
</html>`,
		template.HTMLEscapeString(rm.ID),
		overlayCSS,
		template.URLQueryEscaper(rm.ID),
		template.URLQueryEscaper(rm.ID),
		overlayScript,
		template.JSEscapeString(rm.ID),
		template.JSEscapeString(videoURL),
	)
}
