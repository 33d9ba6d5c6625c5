package app

import (
	"fmt"
	"html/template"
	"net/http"
	"time"
)

// GET /post/{room} -> simple HTML form to submit comments at the current
// playback position
func (s *Server) handlePostForm(w http.ResponseWriter, r *http.Request) {
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
  <title>DanmakuFlow Post - %s</title>
  <style>
    :root { color-scheme: light dark; }
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Noto Sans JP', 'Hiragino Kaku Gothic ProN', Meiryo, Arial, sans-serif; margin: 24px; }
    .wrap { max-width: 640px; margin: 0 auto; }
    label { display:block; margin: 12px 0 6px; font-weight: 600; }
    input, textarea, button { width:100%%; font-size:16px; padding:10px; box-sizing:border-box; }
    textarea { height: 120px; resize: vertical; }
    .row { display:flex; gap:12px; align-items:center; }
    .row > * { flex: 1; }
    .hint { color: #888; font-size: 12px; }
    .status { margin-top: 12px; min-height: 1.4em; }
    button { cursor: pointer; }
  </style>
</head>
<body>
  <div class="wrap">
    <h1>コメント投稿</h1>
    <p class="hint">ルームID: <code>%s</code></p>
    <form id="msgForm">
      <label for="handle">ハンドルネーム（任意・32文字まで）</label>
      <input id="handle" name="handle" maxlength="32" placeholder="例: alice" />

      <label for="text">コメント（必須・200文字まで）</label>
      <textarea id="text" name="text" maxlength="200" placeholder="今のシーンに一言！"></textarea>
      <div class="row">
        <div class="hint" id="counter">0 / 200</div>
        <div class="hint">再生中の位置に記録され、すぐに流れます。</div>
      </div>
      <button id="submitBtn" type="submit">送信</button>
      <div class="status" id="status"></div>
    </form>
  </div>
  <script>
  (function(){
    const roomId = "%s";
    const form = document.getElementById('msgForm');
    const text = document.getElementById('text');
    const handle = document.getElementById('handle');
    const counter = document.getElementById('counter');
    const status = document.getElementById('status');
    const submitBtn = document.getElementById('submitBtn');

    text.addEventListener('input', ()=>{
      const n = (text.value||'').length; counter.textContent = n + ' / 200';
    });
    form.addEventListener('submit', async (e)=>{
      e.preventDefault();
      const payload = { text: (text.value||'').trim(), handle: (handle.value||'').trim() };
      if (!payload.text){ status.textContent = 'テキストは必須です'; return; }
      submitBtn.disabled = true;
      try {
        const res = await fetch('/rooms/' + roomId + '/comments', {
          method: 'POST', headers: { 'Content-Type': 'application/json' },
          body: JSON.stringify(payload)
        });
        if (res.ok) {
          const info = await res.json();
          status.textContent = '送信しました (' + info.clock + ')';
          text.value = ''; counter.textContent='0 / 200';
        }
        else { status.textContent = 'エラー: ' + await res.text(); }
      } catch(e){ status.textContent = 'ネットワークエラー'; }
      finally { submitBtn.disabled = false; }
    });
  })();
  </script>
</body>
</html>`, template.HTMLEscapeString(rm.ID), template.HTMLEscapeString(rm.ID), template.JSEscapeString(rm.ID))
}

// GET /admin/{room} -> overlay settings and room controls
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	slowMs := int(rm.SlowMode / time.Millisecond)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html lang="ja">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>DanmakuFlow Admin - %s</title>
  <style>
    :root { color-scheme: light dark; }
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Noto Sans JP', 'Hiragino Kaku Gothic ProN', Meiryo, Arial, sans-serif; margin: 24px; }
    .wrap { max-width: 640px; margin: 0 auto; }
    h1 { margin-bottom: 4px; }
    h2 { margin-top: 28px; font-size: 18px; }
    .hint { color: #888; font-size: 12px; margin-bottom: 16px; }
    label { display:block; margin: 12px 0 6px; font-weight: 600; }
    input, button, textarea { font-size:16px; padding:10px; box-sizing:border-box; }
    input[type=range] { width: 100%%; padding: 0; }
    textarea { width:100%%; height:120px; }
    .row { display:flex; gap:12px; align-items:center; }
    .status { margin-top: 12px; min-height: 1.4em; }
    pre { font-size: 12px; }
    button { cursor: pointer; }
  </style>
</head>
<body>
  <div class="wrap">
    <h1>管理パネル</h1>
    <p class="hint">ルームID: <code>%s</code></p>
    <div class="row">
      <label><input id="enabled" type="checkbox" checked /> コメントを表示</label>
      <button id="clearBtn">全消去</button>
      <button id="purgeBtn">保存コメント削除</button>
    </div>

    <h2>表示設定</h2>
    <label>速度 <span data-out="speedScale"></span></label>
    <input data-key="speedScale" type="range" min="0.5" max="2" step="0.1" />
    <label>文字サイズ <span data-out="fontSize"></span></label>
    <input data-key="fontSize" type="range" min="10" max="36" step="1" />
    <label>不透明度 <span data-out="opacity"></span></label>
    <input data-key="opacity" type="range" min="0.2" max="1" step="0.05" />
    <label>表示エリア(%%) <span data-out="areaPercent"></span></label>
    <input data-key="areaPercent" type="range" min="10" max="100" step="5" />
    <label>トラック数 <span data-out="trackCount"></span></label>
    <input data-key="trackCount" type="range" min="4" max="20" step="1" />
    <label>同時表示上限 <span data-out="maxOnScreen"></span></label>
    <input data-key="maxOnScreen" type="range" min="10" max="300" step="10" />
    <label>色</label>
    <input data-key="color" type="color" />
    <label>フォント</label>
    <input data-key="fontFamily" type="text" style="width:100%%" />

    <h2>投稿</h2>
    <label for="slow">スローモード（ミリ秒）</label>
    <div class="row">
      <input id="slow" type="number" min="0" step="100" value="%d" />
      <button id="applySlow">適用</button>
    </div>

    <h2>動画</h2>
    <div class="row">
      <input id="videoUrl" type="url" placeholder="https://..." style="flex:1" />
      <button id="applyVideo">切り替え</button>
    </div>
    <label for="importText">コメント取り込み（1行1件・タイムスタンプ付き）</label>
    <textarea id="importText" placeholder="1:23 ここ好き"></textarea>
    <button id="importBtn">取り込み</button>

    <div class="status" id="status"></div>
    <pre id="stats"></pre>
  </div>
  <script>
  (function(){
    const roomId = "%s";
    const status = document.getElementById('status');
    const statsBox = document.getElementById('stats');
    const slow = document.getElementById('slow');
    const enabled = document.getElementById('enabled');

    function setStatus(t){ status.textContent = t; }
    function post(path, body){
      return fetch(path, {
        method:'POST', headers:{'Content-Type':'application/json'},
        body: body ? JSON.stringify(body) : null
      });
    }
    function roomPost(path, body){ return post('/rooms/' + roomId + '/' + path, body); }
    async function done(res, msg){
      if (res.ok) setStatus(msg); else setStatus('エラー: ' + await res.text());
      return res;
    }

    function show(s){
      for (const el of document.querySelectorAll('[data-key]')) {
        const v = s[el.dataset.key];
        if (v === undefined) continue;
        el.value = el.type === 'color' ? String(v).slice(0, 7).toLowerCase() : v;
      }
      for (const el of document.querySelectorAll('[data-out]')) el.textContent = s[el.dataset.out];
    }
    fetch('/settings').then(r => r.json()).then(show);
    for (const el of document.querySelectorAll('[data-key]')) {
      el.addEventListener('change', async ()=>{
        const res = await post('/settings', {key: el.dataset.key, value: String(el.value)});
        if (res.ok) { show(await res.json()); setStatus('設定を更新しました'); }
        else setStatus('エラー: ' + await res.text());
      });
    }

    enabled.addEventListener('change', async ()=>{
      await done(await roomPost('enabled', {enabled: enabled.checked}), enabled.checked ? '表示オン' : '表示オフ');
    });
    document.getElementById('clearBtn').addEventListener('click', async ()=>{
      await done(await roomPost('clear'), '全消去しました');
    });
    document.getElementById('purgeBtn').addEventListener('click', async ()=>{
      if (!confirm('この動画の保存コメントを削除しますか？')) return;
      const res = await fetch('/rooms/' + roomId + '/comments', {method:'DELETE'});
      if (res.ok) { const info = await res.json(); setStatus('保存コメントを削除しました (残り' + info.loaded + '件)'); }
      else setStatus('エラー: ' + await res.text());
    });
    document.getElementById('applySlow').addEventListener('click', async ()=>{
      const ms = parseInt(slow.value||'0', 10) || 0;
      await done(await roomPost('slowmode', {ms}), 'スローモード: ' + ms + 'ms');
    });
    document.getElementById('applyVideo').addEventListener('click', async ()=>{
      const videoUrl = document.getElementById('videoUrl').value.trim();
      const res = await roomPost('video', {videoUrl});
      if (res.ok) { const info = await res.json(); setStatus('動画を切り替えました (' + info.loaded + '件)'); }
      else setStatus('エラー: ' + await res.text());
    });
    document.getElementById('importBtn').addEventListener('click', async ()=>{
      const lines = document.getElementById('importText').value.split('\n').filter(l => l.trim());
      const res = await roomPost('import', {comments: lines});
      if (res.ok) { const info = await res.json(); setStatus(info.added + '件追加 / ' + info.rejected + '件除外'); }
      else setStatus('エラー: ' + await res.text());
    });

    async function poll(){
      try {
        const res = await fetch('/rooms/' + roomId + '/stats');
        if (res.ok) {
          const st = await res.json();
          enabled.checked = st.enabled;
          statsBox.textContent = JSON.stringify(st, null, 2);
        }
      } catch(e){}
    }
    poll();
    setInterval(poll, 2000);
  })();
  </script>
</body>
</html>`, template.HTMLEscapeString(rm.ID), template.HTMLEscapeString(rm.ID), slowMs, template.JSEscapeString(rm.ID))
}
