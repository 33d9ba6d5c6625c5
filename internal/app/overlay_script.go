package app

// overlayScript replays the room's render commands onto an absolutely
// positioned layer. Elements start just past the right edge and travel by
// translateX(-offset) with linear CSS transitions.
const overlayScript = `
function danmakuLayer(layer) {
  const START_GAP = 20;
  const els = new Map();
  let W = 640, H = 360;

  function place(el, off, dur) {
    el.style.transition = dur > 0 ? 'transform ' + dur + 's linear' : 'none';
    el.style.transform = 'translateX(' + (-off) + 'px)';
  }
  function restyle(el, st) {
    if (!st) return;
    el.style.fontFamily = st.fontFamily;
    el.style.fontSize = st.fontSize + 'px';
    el.style.lineHeight = st.fontSize + 'px';
    el.style.color = st.color;
    el.style.opacity = st.opacity;
  }
  function sized(w, h) {
    W = w || W; H = h || H;
    layer.style.width = W + 'px';
    layer.style.height = H + 'px';
    for (const el of els.values()) el.style.left = (W + START_GAP) + 'px';
    layer.dispatchEvent(new CustomEvent('layersize', {detail: {w: W, h: H}}));
  }

  function apply(cmd) {
    let el = cmd.id ? els.get(cmd.id) : null;
    switch (cmd.op) {
    case 'spawn':
      el = document.createElement('div');
      el.className = 'dm' + (cmd.origin === 'structured' ? ' yd' : '');
      el.textContent = cmd.text || '';
      el.style.top = (cmd.top || 0) + 'px';
      el.style.left = (W + START_GAP) + 'px';
      restyle(el, cmd.style);
      place(el, 0, 0);
      layer.appendChild(el);
      els.set(cmd.id, el);
      break;
    case 'move':
      if (!el) return;
      place(el, cmd.from || 0, 0);
      el.getBoundingClientRect();
      place(el, cmd.to || 0, cmd.duration || 0);
      break;
    case 'pin':
      if (el) place(el, cmd.at || 0, 0);
      break;
    case 'style':
      if (el) restyle(el, cmd.style);
      break;
    case 'remove':
      if (el) { el.remove(); els.delete(cmd.id); }
      break;
    case 'release':
      layer.replaceChildren();
      els.clear();
      break;
    case 'resize':
      sized(cmd.w, cmd.h);
      break;
    }
  }

  function connect(roomId, handlers) {
    const proto = location.protocol === 'https:' ? 'wss' : 'ws';
    const url = proto + '://' + location.host + '/ws/' + roomId;
    let ws = null;
    function open() {
      ws = new WebSocket(url);
      ws.addEventListener('open', () => handlers.open && handlers.open(ws));
      ws.addEventListener('message', (ev) => {
        let msg;
        try { msg = JSON.parse(ev.data); } catch (e) { return; }
        if (msg.op) apply(msg);
        else if (msg.type && handlers[msg.type]) handlers[msg.type](msg);
      });
      ws.addEventListener('close', () => setTimeout(open, 1000));
      ws.addEventListener('error', () => { try { ws.close(); } catch (e) {} });
    }
    open();
    return {
      send(obj) { if (ws && ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify(obj)); }
    };
  }

  return {apply, connect, size: () => ({w: W, h: H})};
}
`

// overlayCSS styles the layer built by overlayScript. The structured badge is
// 16px plus a 4px gap and the horizontal padding totals 12px.
const overlayCSS = `
    .layer { position:absolute; left:0; top:0; overflow:hidden; pointer-events:none; transform-origin: 0 0; }
    .dm { position:absolute; white-space:nowrap; padding:0 6px; will-change:transform;
          text-shadow: 0 0 2px #000, 1px 1px 2px #000; }
    .dm.yd::before { content:'▶'; display:inline-block; width:16px; margin-right:4px; font-size:12px; color:#f33; }
`
