package server

// pageStyle is shared by the TV and Remote pages.
const pageStyle = `
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; margin-bottom: 10px; }
        button {
            background: #4285f4;
            color: white;
            border: none;
            padding: 12px 24px;
            border-radius: 4px;
            cursor: pointer;
            font-size: 16px;
        }
        input { font-size: 16px; padding: 10px; margin-right: 10px; }
        #join-code { font-size: 48px; letter-spacing: 8px; font-family: 'SF Mono', Consolas, monospace; }
        .error { color: #721c24; }
        .events li { padding: 6px 0; color: #555; }
    </style>`

// signalingScript defines SignalingClient, the page side of /signal.
// disconnect() resolves once the socket is closed, or after two seconds.
const signalingScript = `
    <script>
        class SignalingClient {
            constructor(query) {
                this.query = query;
                this.handlers = {};
                this.ws = null;
            }

            on(type, fn) {
                this.handlers[type] = fn;
                return this;
            }

            emit(type, msg) {
                const fn = this.handlers[type];
                if (fn) fn(msg || {});
            }

            connect() {
                const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
                this.ws = new WebSocket(proto + '//' + location.host + '/signal?' + this.query.toString());
                this.ws.onmessage = (event) => {
                    const msg = JSON.parse(event.data);
                    this.emit(msg.type, msg);
                };
                this.ws.onclose = () => this.emit('close');
                return this;
            }

            send(msg) {
                if (this.ws && this.ws.readyState === WebSocket.OPEN) {
                    this.ws.send(JSON.stringify(msg));
                }
            }

            disconnect() {
                const ws = this.ws;
                if (!ws || ws.readyState === WebSocket.CLOSED) {
                    return Promise.resolve();
                }
                return new Promise((resolve) => {
                    const timer = setTimeout(resolve, 2000);
                    ws.addEventListener('close', () => {
                        clearTimeout(timer);
                        resolve();
                    });
                    this.send({ type: 'disconnect' });
                    ws.close();
                });
            }
        }

        function show(views, id) {
            views.forEach((view) => {
                document.getElementById(view).hidden = view !== id;
            });
        }
    </script>`

// TVPage is the TV calendar. It shows a join code until a Remote pairs,
// then follows the Remote into a meeting or the share view.
const TVPage = `<!DOCTYPE html>
<html>
<head>
    <title>TV Calendar</title>` + pageStyle + signalingScript + `
</head>
<body>
    <div class="container">
        <div id="calendar">
            <h1>Today</h1>
            <ul class="events">
                <li>09:30 Standup</li>
                <li>13:00 Design review</li>
                <li>16:00 Retro</li>
            </ul>
            <p>Join code:</p>
            <div id="join-code"></div>
            <p id="paired-status" hidden>Remote connected</p>
        </div>

        <div id="meeting" hidden>
            <h1>In meeting</h1>
            <p id="meeting-name"></p>
        </div>

        <div id="share-view" hidden>
            <h1>Screen share</h1>
            <p id="share-status">Waiting for screen share...</p>
        </div>
    </div>

    <script>
        const views = ['calendar', 'meeting', 'share-view'];
        const params = new URLSearchParams(location.search);
        const joinCode = document.getElementById('join-code');
        const pairedStatus = document.getElementById('paired-status');
        const shareStatus = document.getElementById('share-status');

        const client = new SignalingClient(new URLSearchParams({
            role: 'tv',
            pairingCode: params.get('pairingCode') || ''
        }));
        window.signalingClient = client;

        client
            .on('join-code', (msg) => {
                joinCode.textContent = msg.code;
                pairedStatus.hidden = true;
                show(views, 'calendar');
            })
            .on('paired', (msg) => {
                joinCode.textContent = '';
                pairedStatus.hidden = false;
                if (msg.share) {
                    shareStatus.textContent = 'Waiting for screen share...';
                    show(views, 'share-view');
                }
            })
            .on('join-meeting', (msg) => {
                document.getElementById('meeting-name').textContent = msg.name;
                show(views, 'meeting');
            })
            .on('share-started', () => {
                shareStatus.textContent = 'Receiving screen share';
            })
            .on('share-stopped', () => {
                shareStatus.textContent = 'Screen share stopped';
            })
            .on('peer-disconnected', () => {
                pairedStatus.hidden = true;
                show(views, 'calendar');
            })
            .on('close', () => {
                joinCode.textContent = '';
            })
            .connect();
    </script>
</body>
</html>`

// RemotePage is the Remote join page. ?share=true pairs in share-only mode
// and streams the (fake) camera to /share/offer instead of showing controls.
const RemotePage = `<!DOCTYPE html>
<html>
<head>
    <title>Remote</title>` + pageStyle + signalingScript + `
</head>
<body>
    <div class="container">
        <div id="join-view">
            <h1>Connect to TV</h1>
            <input id="join-code-input" type="text" inputmode="numeric" autocomplete="off" placeholder="Join code">
            <button id="join-code-submit" type="button" onclick="submitCode()">Connect</button>
            <p id="join-code-error" class="error"></p>
        </div>

        <div id="remote-control" hidden>
            <h1>Remote control</h1>
            <input id="meeting-name-input" type="text" autocomplete="off" placeholder="Meeting name">
            <button id="meeting-name-submit" type="button" onclick="submitMeetingName()">Join meeting</button>
            <p id="meeting-status"></p>
        </div>

        <div id="share-control" hidden>
            <h1>Sharing to TV</h1>
            <p id="share-status">Starting share...</p>
        </div>
    </div>

    <script>
        const views = ['join-view', 'remote-control', 'share-control'];
        const params = new URLSearchParams(location.search);
        const shareOnly = params.get('share') === 'true';
        let sharePC = null;
        let shareStream = null;

        function setShareStatus(text) {
            document.getElementById('share-status').textContent = text;
        }

        function submitCode() {
            const code = document.getElementById('join-code-input').value.trim();
            document.getElementById('join-code-error').textContent = '';
            if (window.signalingClient) {
                window.signalingClient.disconnect();
            }

            const client = new SignalingClient(new URLSearchParams({
                role: 'remote',
                code: code,
                share: String(shareOnly)
            }));
            window.signalingClient = client;

            client
                .on('paired', (msg) => {
                    if (msg.share) {
                        show(views, 'share-control');
                        startShare(msg.room);
                    } else {
                        show(views, 'remote-control');
                    }
                })
                .on('meeting-joined', (msg) => {
                    document.getElementById('meeting-status').textContent = 'Joined ' + msg.name;
                })
                .on('error', (msg) => {
                    document.getElementById('join-code-error').textContent = msg.error;
                })
                .on('peer-disconnected', () => {
                    stopShare();
                    show(views, 'join-view');
                })
                .on('close', () => {
                    if (window.signalingClient === client) {
                        stopShare();
                        show(views, 'join-view');
                    }
                })
                .connect();
        }

        function submitMeetingName() {
            const name = document.getElementById('meeting-name-input').value;
            window.signalingClient.send({ type: 'join-meeting', name: name });
        }

        async function startShare(room) {
            try {
                shareStream = await navigator.mediaDevices.getUserMedia({
                    video: { width: 640, height: 480, frameRate: 15 },
                    audio: false
                });

                sharePC = new RTCPeerConnection({ iceServers: [] });
                shareStream.getTracks().forEach((track) => sharePC.addTrack(track, shareStream));
                sharePC.onconnectionstatechange = () => {
                    if (!sharePC) return;
                    if (sharePC.connectionState === 'connected') {
                        setShareStatus('Sharing');
                    } else if (sharePC.connectionState === 'failed') {
                        setShareStatus('Share failed');
                    }
                };

                const offer = await sharePC.createOffer();
                await sharePC.setLocalDescription(offer);
                await new Promise((resolve) => {
                    if (sharePC.iceGatheringState === 'complete') {
                        resolve();
                        return;
                    }
                    sharePC.onicecandidate = (event) => {
                        if (event.candidate === null) resolve();
                    };
                });

                const response = await fetch('/share/offer?room=' + encodeURIComponent(room), {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify(sharePC.localDescription)
                });
                if (!response.ok) {
                    throw new Error('Server returned ' + response.status);
                }
                await sharePC.setRemoteDescription(await response.json());
            } catch (err) {
                setShareStatus('Share failed: ' + (err.message || String(err)));
                stopShare();
            }
        }

        function stopShare() {
            if (sharePC) {
                sharePC.close();
                sharePC = null;
            }
            if (shareStream) {
                shareStream.getTracks().forEach((track) => track.stop());
                shareStream = null;
            }
        }
    </script>
</body>
</html>`
