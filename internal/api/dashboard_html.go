package api

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>PleasantBot Dashboard</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;
  --primary:#a970ff;--green:#3fb950;--red:#f85149;--radius:8px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
a{color:var(--primary);text-decoration:none}
button{cursor:pointer;font-family:inherit;font-size:inherit;background:var(--primary);color:#fff;border:0;border-radius:4px;padding:6px 14px}
button.secondary{background:transparent;border:1px solid var(--border);color:var(--text)}
input,select{background:#0d1117;color:var(--text);border:1px solid var(--border);border-radius:4px;padding:6px 8px}
header{background:var(--bg-card);border-bottom:1px solid var(--border);padding:12px 24px;display:flex;gap:20px;align-items:center}
header .title{font-weight:700;font-size:18px}
header nav a{margin-right:14px;color:var(--text-muted)}
header nav a.active{color:var(--text)}
header .auth{margin-left:auto;font-size:13px}
main{max-width:1100px;margin:24px auto;padding:0 24px}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:16px;margin-bottom:16px}
.stats{display:grid;grid-template-columns:repeat(auto-fit,minmax(160px,1fr));gap:12px}
.stat .label{color:var(--text-muted);font-size:12px;text-transform:uppercase}
.stat .value{font-size:22px;font-weight:600}
table{width:100%;border-collapse:collapse}
th,td{text-align:left;padding:6px 8px;border-bottom:1px solid var(--border)}
th{color:var(--text-muted);font-weight:500;font-size:13px}
.error{color:var(--red);font-weight:600}
.ok{color:var(--green)}
form.inline{display:flex;gap:8px;flex-wrap:wrap;margin-bottom:12px}
form.inline input[name=response]{flex:1;min-width:240px}
.toolbar{display:flex;gap:8px;margin:8px 0}
</style>
</head>
<body>
<header>
  <span class="title">PleasantBot</span>
  <nav>
    <a href="/dashboard" data-page="dashboard">Dashboard</a>
    <a href="/commands" data-page="commands">Commands</a>
    <a href="/quotes" data-page="quotes">Quotes</a>
    <a href="/help" data-page="help">Help</a>
  </nav>
  <span class="auth" id="auth"></span>
</header>
<main id="app"></main>
<script>
(function() {
  'use strict';

  var keyName = 'pleasantdash-api-key';
  var app = document.getElementById('app');

  function esc(s) {
    return String(s == null ? '' : s).replace(/[&<>"']/g, function(c) {
      return {'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c];
    });
  }

  function api(method, path, body) {
    var opts = {method: method, headers: {}};
    var key = localStorage.getItem(keyName);
    if (key) opts.headers['Authorization'] = 'Bearer ' + key;
    if (body !== undefined) {
      opts.headers['Content-Type'] = 'application/json';
      opts.body = JSON.stringify(body);
    }
    return fetch(path, opts).then(function(resp) {
      if (resp.status === 401) {
        var entered = prompt('API key');
        if (entered) {
          localStorage.setItem(keyName, entered);
          return api(method, path, body);
        }
      }
      return resp.json().then(function(data) { return {status: resp.status, data: data}; });
    });
  }

  function notLoaded(st) {
    return '<p class="error">' + esc(st.message || 'ERROR. Please ensure the bot is running.') + '</p>';
  }

  // --- Pages ---

  function renderDashboard() {
    api('GET', '/api/dashboard?refresh=1').then(function(r) {
      var st = r.data;
      if (!st.loaded) { app.innerHTML = notLoaded(st); return; }
      var s = st.stats;
      var html = '<div class="card"><h3>Quick Stats</h3><div class="stats">' +
        stat('Commands', s.Commands) + stat('Quotes', s.Quotes) + stat('Bans', s.Bans) +
        stat('Top command', s.TopCommand + ' (' + s.TopComCount + ')') +
        stat('Top chatter', s.TopChatter + ' (' + s.TopChatCount + ')') +
        '</div></div><div class="card"><h3>Ban History</h3>';
      if (!st.bans.length) {
        html += '<p>There is no ban history data.</p>';
      } else {
        html += '<table><tr><th>User</th><th>Reason</th><th>Timestamp</th></tr>';
        st.bans.forEach(function(b) {
          html += '<tr><td>' + esc(b.User) + '</td><td>' + esc(b.Reason) + '</td><td>' + esc(b.Timestamp) + '</td></tr>';
        });
        html += '</table>';
      }
      app.innerHTML = html + '</div>';
    });
  }

  function stat(label, value) {
    return '<div class="stat"><div class="label">' + esc(label) + '</div><div class="value">' + esc(value) + '</div></div>';
  }

  var selected = [];

  function renderCommands(st) {
    if (!st) {
      api('GET', '/api/commands?refresh=1').then(function(r) { renderCommands(r.data); });
      return;
    }
    if (!st.loaded) { app.innerHTML = notLoaded(st); return; }
    selected = selected.filter(function(n) {
      return st.rows.some(function(row) { return row.name === n; });
    });
    var html = '<div class="card"><h3>Add Command</h3><form class="inline" id="add">' +
      '<input name="name" placeholder="Command name" required>' +
      '<input name="response" placeholder="Response" required>' +
      '<select name="perm"><option>all</option><option>subscriber</option><option>moderator</option><option>broadcaster</option></select>' +
      '<button type="submit">Add</button></form><p id="msg"></p></div>' +
      '<div class="card"><h3>Commands</h3><div class="toolbar"><button class="secondary" id="del">Delete selected</button></div>' +
      '<table><tr><th><input type="checkbox" id="all"></th><th>Name</th><th>Response</th><th>Permission</th></tr>';
    st.rows.forEach(function(row) {
      var checked = selected.indexOf(row.name) >= 0 ? ' checked' : '';
      html += '<tr><td><input type="checkbox" class="sel" value="' + esc(row.name) + '"' + checked + '></td>' +
        '<td>' + esc(row.name) + '</td><td>' + esc(row.response) + '</td><td>' + esc(row.perm) + '</td></tr>';
    });
    app.innerHTML = html + '</table></div>';

    document.getElementById('add').onsubmit = function(ev) {
      ev.preventDefault();
      var f = ev.target;
      api('POST', '/api/commands', {CommandName: f.name.value, Response: f.response.value, Perm: f.perm.value})
        .then(mutated);
    };
    document.getElementById('del').onclick = function() {
      if (!selected.length) return;
      api('POST', '/api/commands/delete', selected.slice()).then(function(r) {
        selected = [];
        mutated(r);
      });
    };
    document.getElementById('all').onchange = function(ev) {
      selected = ev.target.checked ? st.rows.map(function(row) { return row.name; }) : [];
      renderCommands(st);
    };
    Array.prototype.forEach.call(document.querySelectorAll('.sel'), function(cb) {
      cb.onchange = function() {
        var i = selected.indexOf(cb.value);
        if (cb.checked && i < 0) selected.push(cb.value);
        if (!cb.checked && i >= 0) selected.splice(i, 1);
      };
    });
  }

  function mutated(r) {
    renderCommands(r.data.state);
    var msg = document.getElementById('msg');
    if (msg && r.data.error) {
      msg.className = 'error';
      msg.textContent = r.data.error;
    }
  }

  function renderQuotes() {
    api('GET', '/api/quotes?refresh=1').then(function(r) {
      var st = r.data;
      var html = '<div class="card"><h3>Quotes</h3>';
      if (st.error) html += '<p class="error">' + esc(st.error) + '</p>';
      html += '<table><tr><th>#</th><th>Quote</th><th>Date</th><th>Submitter</th></tr>';
      st.rows.forEach(function(q) {
        html += '<tr><td>' + q.id + '</td><td>' + esc(q.quote) + '</td><td>' + esc(q.timestamp) + '</td><td>' + esc(q.submitter) + '</td></tr>';
      });
      app.innerHTML = html + '</table></div>';
    });
  }

  function renderHelp() {
    app.innerHTML = '<div class="card"><h3>Encounter a bug, confused about some aspect of PleasantBot, or want to request a new feature?</h3>' +
      '<p>Then feel free to file a GitHub issue <a target="_blank" rel="noreferrer" href="https://github.com/murnux/PleasantBot/issues">here.</a></p></div>';
  }

  // --- Auth ---

  function renderAuth() {
    api('GET', '/api/auth').then(function(r) {
      var el = document.getElementById('auth');
      if (r.data.authenticated) {
        el.innerHTML = '<span class="ok">Bot authenticated</span>';
      } else {
        el.innerHTML = '<a href="/login">Login to Twitch</a>';
      }
    });
  }

  function takeToken() {
    if (location.hash.indexOf('access_token=') < 0) return Promise.resolve();
    var fragment = location.hash;
    history.replaceState(null, '', location.pathname);
    return api('POST', '/api/auth/token', {fragment: fragment});
  }

  var pages = {dashboard: renderDashboard, commands: function() { renderCommands(); }, quotes: renderQuotes, help: renderHelp};

  function route() {
    var page = location.pathname.replace(/^\//, '') || 'dashboard';
    if (!pages[page]) page = 'dashboard';
    Array.prototype.forEach.call(document.querySelectorAll('nav a'), function(a) {
      a.className = a.getAttribute('data-page') === page ? 'active' : '';
    });
    pages[page]();
  }

  takeToken().then(function() {
    renderAuth();
    route();
  });
})();
</script>
</body>
</html>
`
